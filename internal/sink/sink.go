// Package sink writes emitted frames to the output video and the previews.
package sink

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"videodetect/internal/frame"
	"videodetect/internal/logger"
)

// ErrFrameSizeMismatch is returned when a frame differs from the declared resolution.
var ErrFrameSizeMismatch = errors.New("frame size mismatch")

// Writer persists frames, usually into a video container.
type Writer interface {
	Write(f frame.Frame) error
	Close() error
}

// Preview displays frames. It must not keep references to f after Show returns.
type Preview interface {
	Show(f frame.Frame) error
	Close() error
}

// Sink fans each frame out to one Writer and any number of previews.
type Sink struct {
	props    frame.Props
	writer   Writer
	previews []Preview
	logger   *logger.Logger
	written  int
	closed   bool
}

// New creates a Sink bound to the resolution and rate in props.
func New(props frame.Props, writer Writer, logger *logger.Logger, previews ...Preview) *Sink {
	return &Sink{
		props:    props,
		writer:   writer,
		previews: previews,
		logger:   logger,
	}
}

// Write stores f once in the writer and then shows it on every preview.
// Preview failures are logged and do not stop the run.
func (s *Sink) Write(f frame.Frame) error {
	if s.closed {
		return fmt.Errorf("sink: write after close")
	}
	if !s.props.Matches(f) {
		return fmt.Errorf("%w: frame %d is %dx%d, sink expects %dx%d",
			ErrFrameSizeMismatch, f.Seq, f.Width, f.Height, s.props.Width, s.props.Height)
	}
	if err := s.writer.Write(f); err != nil {
		return fmt.Errorf("sink: write frame %d: %w", f.Seq, err)
	}
	s.written++

	for _, p := range s.previews {
		if err := p.Show(f); err != nil {
			s.logger.Warning("Preview failed on frame %d: %v", f.Seq, err)
		}
	}
	return nil
}

// Written returns how many frames reached the writer.
func (s *Sink) Written() int {
	return s.written
}

// Props returns the properties the sink was created with.
func (s *Sink) Props() frame.Props {
	return s.props
}

// Previews exposes the attached previews, e.g. to find a cancel poller.
func (s *Sink) Previews() []Preview {
	return s.previews
}

// Cancelled reports whether any preview that polls for a cancel key saw it.
func (s *Sink) Cancelled() bool {
	for _, p := range s.previews {
		if c, ok := p.(interface{ Cancelled() bool }); ok && c.Cancelled() {
			return true
		}
	}
	return false
}

// Close finalises the writer and the previews. Safe to call more than once.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	err = multierr.Append(err, s.writer.Close())
	for _, p := range s.previews {
		err = multierr.Append(err, p.Close())
	}
	return err
}
