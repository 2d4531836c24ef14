// Package pipeline drives the capture, detect and write loop of a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"videodetect/internal/frame"
	"videodetect/internal/gate"
	"videodetect/internal/model"
)

// ErrTerminated is returned when Run is called on a finished controller.
var ErrTerminated = errors.New("pipeline terminated")

// State is the lifecycle stage of a Controller.
type State int

const (
	Idle State = iota
	Running
	Draining
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source yields frames until io.EOF.
type Source interface {
	Props() frame.Props
	Next(ctx context.Context) (frame.Frame, error)
	Close() error
}

// Sink takes every emitted frame exactly once.
type Sink interface {
	Write(f frame.Frame) error
	Written() int
	Close() error
}

// Detector finds objects in a frame. When it returns a frame that does not
// share the input's buffer, the caller owns and releases it.
type Detector interface {
	Detect(ctx context.Context, f frame.Frame) (frame.Frame, []model.Detection, error)
}

// Scheduler decides which frames are due for detection.
type Scheduler interface {
	Now() time.Time
	Due(now time.Time) bool
	Fire(now time.Time) bool
	Stats() gate.Stats
}

// CancelPoller reports an interactive abort. Sinks may implement it.
type CancelPoller interface {
	Cancelled() bool
}

// Log receives detection records and writes them out once at the end.
type Log interface {
	Append(records ...model.DetectionRecord) error
	Len() int
	Flush(ctx context.Context, run *model.Run) error
}

// Pass is one trip through the loop: one source into one sink.
// A nil Detector makes it a pure recording pass.
type Pass struct {
	Name     string
	Open     func() (Source, error)
	Sink     func(props frame.Props) (Sink, error)
	Gate     Scheduler
	Detector Detector
	Cancel   CancelPoller
}

// Stop reasons reported in PassStats.
const (
	ReasonEnd       = "end of source"
	ReasonCancelKey = "cancel key"
	ReasonContext   = "context cancelled"
	ReasonError     = "error"
)

// PassStats summarises one pass.
type PassStats struct {
	Name          string        `json:"name"`
	Props         frame.Props   `json:"props"`
	FramesRead    int           `json:"frames_read"`
	FramesWritten int           `json:"frames_written"`
	Detections    int           `json:"detections"`
	Gate          gate.Stats    `json:"gate"`
	Reason        string        `json:"reason"`
	Duration      time.Duration `json:"duration"`
}

// Result summarises a run.
type Result struct {
	RunID      string      `json:"run_id"`
	State      string      `json:"state"`
	Passes     []PassStats `json:"passes"`
	Detections int         `json:"detections"`
	Flushed    bool        `json:"flushed"`
}
