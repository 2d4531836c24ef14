// Package capture owns the lifecycle of a video source and its terminal state.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"videodetect/internal/frame"
	"videodetect/internal/logger"
)

var (
	// ErrSourceUnavailable is returned when a descriptor cannot be opened.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrFrameRead marks a mid-stream read failure. The source reports it as End.
	ErrFrameRead = errors.New("frame read error")
)

// Device is a backend handle that produces frames.
type Device interface {
	Props() frame.Props
	// Grab returns the next frame, io.EOF at the end of the stream, or a read error.
	Grab() (frame.Frame, error)
	Close() error
}

// Opener opens a backend Device for a descriptor.
type Opener func(d Descriptor) (Device, error)

// Source wraps a Device and guarantees that End is terminal.
type Source struct {
	desc    Descriptor
	dev     Device
	props   frame.Props
	logger  *logger.Logger
	seq     int
	done    bool
	closed  bool
	readErr error
}

// Open opens d through opener and validates what the backend reports.
// Non-positive frame rates are replaced with defaultFPS.
func Open(d Descriptor, opener Opener, defaultFPS float64, logger *logger.Logger) (*Source, error) {
	if d.Kind == File {
		if _, err := os.Stat(d.Path); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, d.Path, err)
		}
	}

	dev, err := opener(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, d, err)
	}

	props := dev.Props()
	if props.Width <= 0 || props.Height <= 0 {
		dev.Close()
		return nil, fmt.Errorf("%w: %s: invalid resolution %dx%d", ErrSourceUnavailable, d, props.Width, props.Height)
	}
	if props.FPS <= 0 {
		logger.Warning("Source %s reports no frame rate, using %.2f", d, defaultFPS)
		props.FPS = defaultFPS
	}

	logger.Info("Opened %s source %s (%s)", d.Kind, d, props)
	return &Source{desc: d, dev: dev, props: props, logger: logger}, nil
}

// Props returns the resolution and frame rate captured at open time.
func (s *Source) Props() frame.Props {
	return s.props
}

// Descriptor returns what the source was opened from.
func (s *Source) Descriptor() Descriptor {
	return s.desc
}

// Next returns the next frame or io.EOF. Once io.EOF has been returned the
// device is never read again.
func (s *Source) Next(ctx context.Context) (frame.Frame, error) {
	if s.done || s.closed {
		return frame.Frame{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}

	f, err := s.dev.Grab()
	if err != nil {
		s.done = true
		if !errors.Is(err, io.EOF) {
			s.readErr = fmt.Errorf("%w: %s: %v", ErrFrameRead, s.desc, err)
			s.logger.Warning("Stopping on read failure after %d frames: %v", s.seq, s.readErr)
		}
		return frame.Frame{}, io.EOF
	}

	s.seq++
	f.Seq = s.seq
	return f, nil
}

// Frames returns how many frames were delivered.
func (s *Source) Frames() int {
	return s.seq
}

// ReadErr returns the read failure that ended the source, if any.
func (s *Source) ReadErr() error {
	return s.readErr
}

// Close releases the device. Safe to call more than once.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.dev.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.desc, err)
	}
	return nil
}
