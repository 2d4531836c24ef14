// Package recorder writes frames to video files and shows them in a window.
package recorder

import (
	"fmt"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"videodetect/internal/frame"
	"videodetect/internal/services/camera"
)

// EscKey is the key code that aborts a run from the preview window.
const EscKey = 27

// FileWriter is a sink.Writer that encodes frames into a video container.
type FileWriter struct {
	path   string
	writer *gocv.VideoWriter
}

// NewFileWriter opens path for writing at the resolution and rate in props.
func NewFileWriter(path, codec string, props frame.Props) (*FileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	writer, err := gocv.VideoWriterFile(path, codec, props.FPS, props.Width, props.Height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open video writer %s: %w", path, err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, fmt.Errorf("video writer %s not opened (codec %s)", path, codec)
	}

	return &FileWriter{path: path, writer: writer}, nil
}

// Path returns the output file name.
func (w *FileWriter) Path() string {
	return w.path
}

func (w *FileWriter) Write(f frame.Frame) error {
	img, err := camera.Mat(f)
	if err != nil {
		return err
	}
	return w.writer.Write(*img)
}

func (w *FileWriter) Close() error {
	return w.writer.Close()
}

// Window is a sink.Preview that shows frames in a desktop window. It also
// polls the keyboard once per shown frame; ESC marks the run as cancelled.
type Window struct {
	window    *gocv.Window
	cancelled bool
}

// NewWindow opens a preview window with the given title.
func NewWindow(title string) *Window {
	return &Window{window: gocv.NewWindow(title)}
}

func (w *Window) Show(f frame.Frame) error {
	img, err := camera.Mat(f)
	if err != nil {
		return err
	}
	w.window.IMShow(*img)
	if w.window.WaitKey(1) == EscKey {
		w.cancelled = true
	}
	return nil
}

// Cancelled reports whether ESC was pressed.
func (w *Window) Cancelled() bool {
	return w.cancelled
}

func (w *Window) Close() error {
	return w.window.Close()
}
