// Package frame holds the picture type handed between source, detector and sink.
package frame

import "fmt"

// Buffer is the backend pixel storage behind a Frame (a *gocv.Mat in production).
type Buffer interface {
	Close() error
}

// Frame is one captured picture. Seq is the capture order within a source.
type Frame struct {
	Seq    int
	Width  int
	Height int
	Buffer Buffer
}

// Release closes the buffer if there is one.
func (f Frame) Release() error {
	if f.Buffer == nil {
		return nil
	}
	return f.Buffer.Close()
}

// Shares reports whether both frames point at the same buffer.
func (f Frame) Shares(other Frame) bool {
	return f.Buffer != nil && f.Buffer == other.Buffer
}

// Props are the native properties of a source, fixed at open time.
type Props struct {
	Width  int
	Height int
	FPS    float64
}

func (p Props) String() string {
	return fmt.Sprintf("%dx%d@%.2f", p.Width, p.Height, p.FPS)
}

// Matches reports whether f has the resolution declared by p.
func (p Props) Matches(f Frame) bool {
	return f.Width == p.Width && f.Height == p.Height
}
