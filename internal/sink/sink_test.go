package sink

import (
	"errors"
	"testing"

	"go.uber.org/multierr"

	"videodetect/internal/frame"
	"videodetect/internal/logger"
)

type recordingWriter struct {
	seqs     []int
	closeErr error
	closed   int
}

func (w *recordingWriter) Write(f frame.Frame) error {
	w.seqs = append(w.seqs, f.Seq)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed++
	return w.closeErr
}

type flakyPreview struct {
	shown    int
	fail     bool
	closeErr error
}

type escPreview struct {
	flakyPreview
	pressed bool
}

func (p *escPreview) Cancelled() bool { return p.pressed }

func (p *flakyPreview) Show(frame.Frame) error {
	p.shown++
	if p.fail {
		return errors.New("display gone")
	}
	return nil
}

func (p *flakyPreview) Close() error { return p.closeErr }

var props = frame.Props{Width: 640, Height: 480, FPS: 30}

func TestWriteFansOutInOrder(t *testing.T) {
	w := &recordingWriter{}
	p := &flakyPreview{}
	s := New(props, w, logger.NewNop(), p)

	for i := 1; i <= 3; i++ {
		if err := s.Write(frame.Frame{Seq: i, Width: 640, Height: 480}); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	if s.Written() != 3 || p.shown != 3 {
		t.Errorf("written = %d, shown = %d; want 3, 3", s.Written(), p.shown)
	}
	for i, seq := range w.seqs {
		if seq != i+1 {
			t.Errorf("writer got %v, want frames in order", w.seqs)
			break
		}
	}
}

func TestWriteRejectsMismatchedFrame(t *testing.T) {
	w := &recordingWriter{}
	s := New(props, w, logger.NewNop())

	err := s.Write(frame.Frame{Seq: 1, Width: 1280, Height: 720})
	if !errors.Is(err, ErrFrameSizeMismatch) {
		t.Fatalf("err = %v, want ErrFrameSizeMismatch", err)
	}
	if len(w.seqs) != 0 || s.Written() != 0 {
		t.Error("mismatched frame must not reach the writer")
	}
}

func TestPreviewFailureIsNotFatal(t *testing.T) {
	w := &recordingWriter{}
	bad := &flakyPreview{fail: true}
	good := &flakyPreview{}
	s := New(props, w, logger.NewNop(), bad, good)

	if err := s.Write(frame.Frame{Seq: 1, Width: 640, Height: 480}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if good.shown != 1 {
		t.Error("later previews must still be shown")
	}
	if s.Written() != 1 {
		t.Errorf("written = %d, want 1", s.Written())
	}
}

func TestCloseCombinesErrorsOnce(t *testing.T) {
	w := &recordingWriter{closeErr: errors.New("moov atom")}
	p := &flakyPreview{closeErr: errors.New("window")}
	s := New(props, w, logger.NewNop(), p)

	err := s.Close()
	if len(multierr.Errors(err)) != 2 {
		t.Errorf("Close error = %v, want both failures", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if w.closed != 1 {
		t.Errorf("writer closed %d times, want 1", w.closed)
	}
	if err := s.Write(frame.Frame{Width: 640, Height: 480}); err == nil {
		t.Error("Write after Close should fail")
	}
}

func TestCancelledFollowsPreviews(t *testing.T) {
	esc := &escPreview{}
	s := New(props, &recordingWriter{}, logger.NewNop(), &flakyPreview{}, esc)

	if s.Cancelled() {
		t.Fatal("Cancelled before any key press")
	}
	esc.pressed = true
	if !s.Cancelled() {
		t.Error("Cancelled should report the preview's key press")
	}
}
