package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"videodetect/internal/logger"
	"videodetect/internal/model"
)

// ErrAlreadyFlushed is returned by Flush and Append once the log has been flushed.
var ErrAlreadyFlushed = errors.New("detection log already flushed")

// Exporter writes the complete record sequence of a run somewhere durable.
type Exporter interface {
	Name() string
	Export(ctx context.Context, run *model.Run, records []model.DetectionRecord) error
}

// Log accumulates detection records in memory and writes them out once.
type Log struct {
	records   []model.DetectionRecord
	exporters []Exporter
	flushed   bool
	logger    *logger.Logger
	mu        sync.Mutex
}

// NewLog creates an empty log that flushes through the given exporters.
func NewLog(logger *logger.Logger, exporters ...Exporter) *Log {
	return &Log{
		records:   make([]model.DetectionRecord, 0),
		exporters: exporters,
		logger:    logger,
	}
}

// Append validates records and adds them in order. Records must not go
// back in time relative to what is already stored.
func (l *Log) Append(records ...model.DetectionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.flushed {
		return ErrAlreadyFlushed
	}

	last := len(l.records) - 1
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", len(l.records)+i, err)
		}
		var prev model.DetectionRecord
		switch {
		case i > 0:
			prev = records[i-1]
		case last >= 0:
			prev = l.records[last]
		default:
			continue
		}
		if rec.CapturedAt.Before(prev.CapturedAt) {
			return fmt.Errorf("record %d: captured at %s, before previous %s",
				len(l.records)+i, rec.CapturedAt.Format(TimestampLayout), prev.CapturedAt.Format(TimestampLayout))
		}
	}

	l.records = append(l.records, records...)
	return nil
}

// Records returns a copy of the stored records in insertion order.
func (l *Log) Records() []model.DetectionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.DetectionRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of stored records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Flushed reports whether Flush has been called.
func (l *Log) Flushed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushed
}

// Flush hands every record to each exporter. It runs at most once; later
// calls return ErrAlreadyFlushed.
func (l *Log) Flush(ctx context.Context, run *model.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.flushed {
		return ErrAlreadyFlushed
	}
	l.flushed = true

	var err error
	for _, e := range l.exporters {
		if exportErr := e.Export(ctx, run, l.records); exportErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s export: %w", e.Name(), exportErr))
			continue
		}
		l.logger.Info("Flushed %d detections to %s", len(l.records), e.Name())
	}
	return err
}
