package capture

import (
	"fmt"
	"strconv"
)

const (
	// StreamScheme and StreamPort are fixed; only the host comes from the user.
	StreamScheme = "rtmp://"
	StreamPort   = 1935
)

// Kind tells which backend a Descriptor points at.
type Kind int

const (
	File Kind = iota
	Camera
	Stream
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Camera:
		return "device"
	case Stream:
		return "stream"
	default:
		return "unknown"
	}
}

// Descriptor identifies a video source.
type Descriptor struct {
	Kind   Kind
	Path   string
	Index  int
	URL    string
	Origin string // Host the stream URL was built from, if any
}

// FileDescriptor points at a video file on disk.
func FileDescriptor(path string) Descriptor {
	return Descriptor{Kind: File, Path: path}
}

// DeviceDescriptor points at a local camera.
func DeviceDescriptor(index int) Descriptor {
	return Descriptor{Kind: Camera, Index: index}
}

// StreamDescriptor builds the relay stream URL for host.
func StreamDescriptor(host string) Descriptor {
	return Descriptor{
		Kind:   Stream,
		URL:    StreamScheme + host + ":" + strconv.Itoa(StreamPort) + "/",
		Origin: host,
	}
}

// Live reports whether the source cannot be rewound.
func (d Descriptor) Live() bool {
	return d.Kind == Camera || d.Kind == Stream
}

func (d Descriptor) String() string {
	switch d.Kind {
	case File:
		return d.Path
	case Camera:
		return fmt.Sprintf("device:%d", d.Index)
	case Stream:
		return d.URL
	default:
		return "unknown source"
	}
}
