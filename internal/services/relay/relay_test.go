package relay

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"videodetect/internal/logger"
)

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

func TestStartAndStop(t *testing.T) {
	requireBinary(t, "sleep")

	p, err := Start(context.Background(), "sleep", []string{"30"}, 20*time.Millisecond, time.Second, logger.NewNop())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !p.Running() {
		t.Fatal("relay should be running after startup delay")
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.Running() {
		t.Error("relay still running after Stop")
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop = %v, want nil", err)
	}
}

func TestStartMissingBinary(t *testing.T) {
	_, err := Start(context.Background(), "/nonexistent/MonaServer", nil, time.Millisecond, time.Second, logger.NewNop())
	if !errors.Is(err, ErrRelayProcess) {
		t.Errorf("err = %v, want ErrRelayProcess", err)
	}

	_, err = Start(context.Background(), "", nil, time.Millisecond, time.Second, logger.NewNop())
	if !errors.Is(err, ErrRelayProcess) {
		t.Errorf("err = %v, want ErrRelayProcess for empty path", err)
	}
}

func TestStartDetectsEarlyExit(t *testing.T) {
	requireBinary(t, "false")

	_, err := Start(context.Background(), "false", nil, 2*time.Second, time.Second, logger.NewNop())
	if !errors.Is(err, ErrRelayProcess) {
		t.Errorf("err = %v, want ErrRelayProcess", err)
	}
}

func TestStartupDelayHonoursContext(t *testing.T) {
	requireBinary(t, "sleep")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	begin := time.Now()
	p, err := Start(ctx, "sleep", []string{"30"}, 10*time.Second, time.Second, logger.NewNop())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	if time.Since(begin) > 5*time.Second {
		t.Error("startup delay ignored cancelled context")
	}
}

func TestStopNil(t *testing.T) {
	var p *Process
	if err := p.Stop(); err != nil {
		t.Errorf("Stop on nil = %v", err)
	}
}
