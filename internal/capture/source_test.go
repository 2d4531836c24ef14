package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"videodetect/internal/frame"
	"videodetect/internal/logger"
)

type fakeDevice struct {
	props  frame.Props
	frames int
	failAt int // 0 = never
	grabs  int
	closed int
}

func (d *fakeDevice) Props() frame.Props { return d.props }

func (d *fakeDevice) Grab() (frame.Frame, error) {
	d.grabs++
	if d.failAt > 0 && d.grabs == d.failAt {
		return frame.Frame{}, errors.New("connection reset")
	}
	if d.grabs > d.frames {
		return frame.Frame{}, io.EOF
	}
	return frame.Frame{Width: d.props.Width, Height: d.props.Height}, nil
}

func (d *fakeDevice) Close() error {
	d.closed++
	return nil
}

func openerFor(dev *fakeDevice) Opener {
	return func(Descriptor) (Device, error) { return dev, nil }
}

func TestOpenMissingFile(t *testing.T) {
	called := false
	opener := func(Descriptor) (Device, error) {
		called = true
		return &fakeDevice{}, nil
	}
	_, err := Open(FileDescriptor(filepath.Join(t.TempDir(), "missing.mp4")), opener, 30, logger.NewNop())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	if called {
		t.Error("backend must not be touched for a missing file")
	}
}

func TestOpenBackendFailure(t *testing.T) {
	opener := func(Descriptor) (Device, error) { return nil, errors.New("camera busy") }
	_, err := Open(DeviceDescriptor(0), opener, 30, logger.NewNop())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestOpenRejectsZeroResolution(t *testing.T) {
	dev := &fakeDevice{props: frame.Props{Width: 0, Height: 0, FPS: 30}}
	_, err := Open(StreamDescriptor("10.0.0.2"), openerFor(dev), 30, logger.NewNop())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	if dev.closed != 1 {
		t.Errorf("device closed %d times, want 1", dev.closed)
	}
}

func TestOpenDefaultsFrameRate(t *testing.T) {
	dev := &fakeDevice{props: frame.Props{Width: 640, Height: 480}}
	src, err := Open(DeviceDescriptor(1), openerFor(dev), 25, logger.NewNop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if src.Props().FPS != 25 {
		t.Errorf("FPS = %v, want 25", src.Props().FPS)
	}
}

func TestNextEndIsIdempotent(t *testing.T) {
	dev := &fakeDevice{props: frame.Props{Width: 4, Height: 3, FPS: 30}, frames: 2}
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	src, err := Open(FileDescriptor(path), openerFor(dev), 30, logger.NewNop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	ctx := context.Background()

	for want := 1; want <= 2; want++ {
		f, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		if f.Seq != want {
			t.Errorf("Seq = %d, want %d", f.Seq, want)
		}
	}
	for i := 0; i < 5; i++ {
		if _, err := src.Next(ctx); err != io.EOF {
			t.Fatalf("call %d after end: err = %v, want io.EOF", i, err)
		}
	}
	if dev.grabs != 3 {
		t.Errorf("device read %d times, want 3", dev.grabs)
	}
	if src.ReadErr() != nil {
		t.Errorf("ReadErr = %v, want nil for a clean end", src.ReadErr())
	}
}

func TestNextReadFailureBecomesEnd(t *testing.T) {
	dev := &fakeDevice{props: frame.Props{Width: 4, Height: 3, FPS: 30}, frames: 10, failAt: 3}
	src, err := Open(StreamDescriptor("192.168.0.10"), openerFor(dev), 30, logger.NewNop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	ctx := context.Background()

	n := 0
	for {
		_, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		n++
	}
	if n != 2 {
		t.Errorf("frames = %d, want 2", n)
	}
	if !errors.Is(src.ReadErr(), ErrFrameRead) {
		t.Errorf("ReadErr = %v, want ErrFrameRead", src.ReadErr())
	}
	if _, err := src.Next(ctx); err != io.EOF {
		t.Errorf("Next after failure = %v, want io.EOF", err)
	}
	if dev.grabs != 3 {
		t.Errorf("device read %d times, want 3", dev.grabs)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	dev := &fakeDevice{props: frame.Props{Width: 4, Height: 3, FPS: 30}, frames: 1}
	src, err := Open(DeviceDescriptor(0), openerFor(dev), 30, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	src.Close()
	src.Close()
	if dev.closed != 1 {
		t.Errorf("device closed %d times, want 1", dev.closed)
	}
	if _, err := src.Next(context.Background()); err != io.EOF {
		t.Errorf("Next on closed source = %v, want io.EOF", err)
	}
}

func TestStreamDescriptor(t *testing.T) {
	d := StreamDescriptor("192.168.1.20")
	if d.URL != "rtmp://192.168.1.20:1935/" {
		t.Errorf("URL = %q", d.URL)
	}
	if !d.Live() {
		t.Error("stream should be live")
	}
	if FileDescriptor("a.mp4").Live() {
		t.Error("file should not be live")
	}
	if DeviceDescriptor(2).String() != "device:2" {
		t.Errorf("String() = %q", DeviceDescriptor(2).String())
	}
}

func TestDeviceDescriptorKind(t *testing.T) {
	d := DeviceDescriptor(2)
	if d.Kind != Camera || d.Kind.String() != "device" {
		t.Errorf("kind = %v (%d), want camera kind", d.Kind, d.Kind)
	}
	if !d.Live() {
		t.Error("camera should be live")
	}

	var opened Descriptor
	opener := func(got Descriptor) (Device, error) {
		opened = got
		return &fakeDevice{props: frame.Props{Width: 320, Height: 240, FPS: 30}}, nil
	}
	src, err := Open(d, opener, 30, logger.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()
	if opened.Kind != Camera || opened.Index != 2 {
		t.Errorf("backend opened %+v", opened)
	}
}
