package model

import (
	"fmt"
	"time"
)

// RunIDLayout formats the run start time into the run identifier.
const RunIDLayout = "20060102_150405"

// Mode selects how the pipeline wires its frame source.
type Mode int

const (
	// Inline detects while reading a stable file.
	Inline Mode = iota
	// RecordThenAnnotate records a live feed first and annotates the recording afterwards.
	RecordThenAnnotate
)

func (m Mode) String() string {
	switch m {
	case Inline:
		return "inline"
	case RecordThenAnnotate:
		return "record-then-annotate"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a CLI/config value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "inline":
		return Inline, nil
	case "record", "record-then-annotate":
		return RecordThenAnnotate, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// Run describes one pipeline invocation. It is never modified after creation.
type Run struct {
	ID        string    `json:"id"`
	UUID      string    `json:"uuid"`
	Mode      Mode      `json:"mode"`
	Source    string    `json:"source"`
	VideoPath string    `json:"video_path"`
	LogPath   string    `json:"log_path"`
	StartedAt time.Time `json:"started_at"`
}

// RunID derives the run identifier from its start time.
func RunID(start time.Time) string {
	return start.Format(RunIDLayout)
}

// ArchivedRun is a run as stored in the detection archive.
type ArchivedRun struct {
	Run
	DBID       int64 `json:"db_id"`
	Detections int   `json:"detections"`
}
