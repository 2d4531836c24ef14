package model

import (
	"fmt"
	"time"
)

// Box is an axis-aligned bounding box in pixel coordinates.
type Box struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

// Valid reports whether the corners are ordered.
func (b Box) Valid() bool {
	return b.XMax >= b.XMin && b.YMax >= b.YMin
}

// Detection is a single object reported by a detector backend.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// DetectionRecord is a detection stamped with the time of the firing that produced it.
type DetectionRecord struct {
	Detection
	CapturedAt time.Time `json:"captured_at"`
}

// Validate rejects out-of-range confidences and inverted boxes.
func (r DetectionRecord) Validate() error {
	if !(r.Confidence >= 0 && r.Confidence <= 1) {
		return fmt.Errorf("confidence %.4f outside [0,1]", r.Confidence)
	}
	if !r.Box.Valid() {
		return fmt.Errorf("box corners out of order: %+v", r.Box)
	}
	if r.CapturedAt.IsZero() {
		return fmt.Errorf("missing capture time")
	}
	return nil
}
