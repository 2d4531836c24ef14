package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/multierr"

	"videodetect/internal/frame"
	"videodetect/internal/logger"
	"videodetect/internal/model"
)

// Controller runs the passes of one run and owns its Detection Log.
// A controller is used once; afterwards it stays Terminated.
type Controller struct {
	run    *model.Run
	log    Log
	logger *logger.Logger

	mu     sync.Mutex
	state  State
	result Result
}

func New(run *model.Run, log Log, logger *logger.Logger) *Controller {
	return &Controller{
		run:    run,
		log:    log,
		logger: logger,
		result: Result{RunID: run.ID, State: Idle.String()},
	}
}

// State returns the current lifecycle stage.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the progress so far. Safe from any goroutine.
func (c *Controller) Stats() Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.result
	out.Passes = append([]PassStats(nil), c.result.Passes...)
	return out
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.result.State = s.String()
	c.mu.Unlock()

	if prev != s {
		c.logger.Debug("Run %s: %s -> %s", c.run.ID, prev, s)
	}
}

func (c *Controller) updatePass(i int, ps PassStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.result.Passes) <= i {
		c.result.Passes = append(c.result.Passes, PassStats{})
	}
	c.result.Passes[i] = ps

	total := 0
	for _, p := range c.result.Passes {
		total += p.Detections
	}
	c.result.Detections = total
}

// Run executes the passes in order. A key cancel ends only the current pass;
// a cancelled ctx also skips the remaining ones. Unless a fatal error
// occurred, the log is flushed once after the last pass released its
// resources. A ctx cancelled before the first pass opens nothing and
// writes nothing.
func (c *Controller) Run(ctx context.Context, passes ...Pass) (Result, error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == Terminated {
		return c.Stats(), ErrTerminated
	}
	if state != Idle {
		return c.Stats(), fmt.Errorf("run %s already %s", c.run.ID, state)
	}
	if len(passes) == 0 {
		c.setState(Terminated)
		return c.Stats(), errors.New("no passes to run")
	}
	if err := ctx.Err(); err != nil {
		c.setState(Terminated)
		c.logger.Warning("Run %s cancelled before capture started", c.run.ID)
		return c.Stats(), fmt.Errorf("run %s: %w", c.run.ID, err)
	}

	for i, p := range passes {
		if err := c.runPass(ctx, i, p); err != nil {
			c.setState(Terminated)
			c.logger.Error("Run %s failed in %s pass: %v", c.run.ID, p.Name, err)
			return c.Stats(), err
		}
		if ctx.Err() != nil {
			if i < len(passes)-1 {
				c.logger.Warning("Run %s cancelled, skipping %d remaining pass(es)", c.run.ID, len(passes)-1-i)
			}
			break
		}
	}

	// The log is written even when ctx is already cancelled.
	err := c.log.Flush(context.WithoutCancel(ctx), c.run)

	c.mu.Lock()
	c.result.Flushed = err == nil
	c.mu.Unlock()
	c.setState(Terminated)

	if err != nil {
		return c.Stats(), fmt.Errorf("flush detection log: %w", err)
	}
	c.logger.Info("Run %s finished with %d detections", c.run.ID, c.log.Len())
	return c.Stats(), nil
}

func (c *Controller) runPass(ctx context.Context, i int, p Pass) (err error) {
	src, err := p.Open()
	if err != nil {
		return err
	}

	props := src.Props()
	snk, err := p.Sink(props)
	if err != nil {
		return multierr.Append(fmt.Errorf("open sink: %w", err), src.Close())
	}

	pollers := make([]CancelPoller, 0, 2)
	if p.Cancel != nil {
		pollers = append(pollers, p.Cancel)
	}
	if cp, ok := snk.(CancelPoller); ok {
		pollers = append(pollers, cp)
	}

	if r, ok := p.Gate.(interface{ Restart(now time.Time) }); ok {
		r.Restart(p.Gate.Now())
	}

	ps := PassStats{Name: p.Name, Props: props, Reason: ReasonEnd}
	started := time.Now()
	c.setState(Running)
	c.updatePass(i, ps)
	c.logger.Info("Pass %s started on %s", p.Name, props)

	fatal := c.loop(ctx, p, src, snk, pollers, &ps, i)

	c.setState(Draining)
	closeErr := multierr.Combine(src.Close(), snk.Close())

	if fatal != nil {
		ps.Reason = ReasonError
	}
	ps.FramesWritten = snk.Written()
	ps.Duration = time.Since(started)
	if p.Gate != nil {
		ps.Gate = p.Gate.Stats()
	}
	c.updatePass(i, ps)

	if r, ok := src.(interface{ ReadErr() error }); ok && r.ReadErr() != nil {
		c.logger.Warning("Pass %s ended on a read failure: %v", p.Name, r.ReadErr())
	}
	if ps.FramesWritten != ps.FramesRead && fatal == nil {
		c.logger.Warning("Pass %s wrote %d of %d frames", p.Name, ps.FramesWritten, ps.FramesRead)
	}
	c.logger.Info("Pass %s drained (%s): %d frames, %d detections, %d firings, max lag %s",
		p.Name, ps.Reason, ps.FramesRead, ps.Detections, ps.Gate.Firings, ps.Gate.MaxLag)

	if fatal != nil {
		return multierr.Append(fatal, closeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("release %s pass: %w", p.Name, closeErr)
	}
	return nil
}

// loop runs the Running state until the source ends, a cancel arrives, or
// a fatal error occurs.
func (c *Controller) loop(ctx context.Context, p Pass, src Source, snk Sink, pollers []CancelPoller, ps *PassStats, i int) error {
	for {
		if ctx.Err() != nil {
			ps.Reason = ReasonContext
			return nil
		}
		for _, cp := range pollers {
			if cp.Cancelled() {
				ps.Reason = ReasonCancelKey
				return nil
			}
		}

		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				ps.Reason = ReasonContext
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		ps.FramesRead++

		emit, err := c.process(ctx, p, f, ps)
		if err != nil {
			f.Release()
			return err
		}

		err = snk.Write(emit)
		if !emit.Shares(f) {
			emit.Release()
		}
		f.Release()
		if err != nil {
			return err
		}

		ps.FramesWritten = snk.Written()
		c.updatePass(i, *ps)
	}
}

// process runs detection on f when the gate is due and returns the frame to emit.
func (c *Controller) process(ctx context.Context, p Pass, f frame.Frame, ps *PassStats) (frame.Frame, error) {
	if p.Detector == nil || p.Gate == nil {
		return f, nil
	}

	now := p.Gate.Now()
	if !p.Gate.Due(now) {
		return f, nil
	}

	// A due frame is always detected; cancellation is honoured at the next frame.
	out, detections, err := p.Detector.Detect(context.WithoutCancel(ctx), f)
	if err != nil {
		return f, fmt.Errorf("detect on frame %d: %w", f.Seq, err)
	}
	p.Gate.Fire(now)

	records := make([]model.DetectionRecord, len(detections))
	for j, d := range detections {
		records[j] = model.DetectionRecord{Detection: d, CapturedAt: now}
	}
	if err := c.log.Append(records...); err != nil {
		if !out.Shares(f) {
			out.Release()
		}
		return f, fmt.Errorf("record detections of frame %d: %w", f.Seq, err)
	}
	ps.Detections += len(records)

	if len(records) > 0 {
		c.logger.Debug("Frame %d: %d detections", f.Seq, len(records))
	}
	return out, nil
}
