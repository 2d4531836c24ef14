// Package camera opens video files, webcams and network streams through OpenCV.
package camera

import (
	"errors"
	"fmt"
	"io"

	"gocv.io/x/gocv"

	"videodetect/internal/capture"
	"videodetect/internal/frame"
)

// ErrNotMat is returned when a frame is not backed by an OpenCV matrix.
var ErrNotMat = errors.New("frame buffer is not a gocv.Mat")

// Device is a capture.Device backed by gocv.VideoCapture.
type Device struct {
	desc   capture.Descriptor
	webcam *gocv.VideoCapture
	props  frame.Props
}

// Open is a capture.Opener for the OpenCV backend.
func Open(d capture.Descriptor) (capture.Device, error) {
	var target interface{}
	switch d.Kind {
	case capture.File:
		target = d.Path
	case capture.Camera:
		target = d.Index
	case capture.Stream:
		target = d.URL
	default:
		return nil, fmt.Errorf("unsupported source kind %s", d.Kind)
	}

	webcam, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, err
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, fmt.Errorf("cannot open %s", d)
	}

	return &Device{
		desc:   d,
		webcam: webcam,
		props: frame.Props{
			Width:  int(webcam.Get(gocv.VideoCaptureFrameWidth)),
			Height: int(webcam.Get(gocv.VideoCaptureFrameHeight)),
			FPS:    webcam.Get(gocv.VideoCaptureFPS),
		},
	}, nil
}

func (d *Device) Props() frame.Props {
	return d.props
}

// Grab reads the next frame. A failed read on a file is the end of the
// stream; on a live source it is a read error.
func (d *Device) Grab() (frame.Frame, error) {
	img := gocv.NewMat()

	if ok := d.webcam.Read(&img); !ok || img.Empty() {
		img.Close()
		if d.desc.Kind == capture.File {
			return frame.Frame{}, io.EOF
		}
		return frame.Frame{}, fmt.Errorf("cannot read %s", d.desc)
	}

	return NewFrame(&img), nil
}

func (d *Device) Close() error {
	return d.webcam.Close()
}

// NewFrame wraps an owned matrix into a frame. Closing the frame closes img.
func NewFrame(img *gocv.Mat) frame.Frame {
	return frame.Frame{Width: img.Cols(), Height: img.Rows(), Buffer: img}
}

// Mat returns the matrix behind f.
func Mat(f frame.Frame) (*gocv.Mat, error) {
	img, ok := f.Buffer.(*gocv.Mat)
	if !ok || img == nil {
		return nil, ErrNotMat
	}
	return img, nil
}

// EncodeJPEG encodes f for the web preview.
func EncodeJPEG(f frame.Frame) ([]byte, error) {
	img, err := Mat(f)
	if err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, nil
}
