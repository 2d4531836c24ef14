// Package relay runs the external server that republishes a live feed as a stream URL.
package relay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"videodetect/internal/logger"
)

// ErrRelayProcess marks relay failures. They are reported but never stop a run.
var ErrRelayProcess = errors.New("relay process failure")

// Process is a running relay server.
type Process struct {
	cmd         *exec.Cmd
	done        chan struct{}
	waitErr     error
	stopTimeout time.Duration
	stopped     bool
	logger      *logger.Logger
}

// Start launches path with args and gives it startupDelay to begin listening.
// The delay ends early when ctx is cancelled.
func Start(ctx context.Context, path string, args []string, startupDelay, stopTimeout time.Duration, logger *logger.Logger) (*Process, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no relay executable configured", ErrRelayProcess)
	}
	bin, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayProcess, err)
	}

	cmd := exec.Command(bin, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrRelayProcess, bin, err)
	}

	p := &Process{
		cmd:         cmd,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
		logger:      logger,
	}
	go p.wait()

	logger.Info("Relay %s started (pid %d), waiting %s", bin, cmd.Process.Pid, startupDelay)

	timer := time.NewTimer(startupDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		logger.Info("Relay startup wait interrupted")
	case <-p.done:
		p.stopped = true
		return nil, fmt.Errorf("%w: %s exited during startup: %v", ErrRelayProcess, bin, p.waitErr)
	}
	return p, nil
}

// wait reaps the process so it never lingers as a zombie.
func (p *Process) wait() {
	p.waitErr = p.cmd.Wait()
	close(p.done)
}

// Pid returns the process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Running reports whether the process has not exited yet.
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Stop asks the relay to exit and kills it after the stop timeout.
// Safe to call on a nil Process and more than once.
func (p *Process) Stop() error {
	if p == nil || p.stopped {
		return nil
	}
	p.stopped = true

	if !p.Running() {
		p.logger.Warning("Relay had already exited: %v", p.waitErr)
		return nil
	}

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		p.logger.Debug("Interrupt not delivered to relay: %v", err)
	}

	timer := time.NewTimer(p.stopTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
		p.logger.Info("Relay stopped")
		return nil
	case <-timer.C:
		p.logger.Warning("Relay stop timeout, force killing process")
	}

	if err := p.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("%w: kill: %v", ErrRelayProcess, err)
	}
	<-p.done
	return nil
}
