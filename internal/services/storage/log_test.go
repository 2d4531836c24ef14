package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"videodetect/internal/logger"
	"videodetect/internal/model"
	"videodetect/internal/repository/sqlite"
)

var base = time.Date(2026, 10, 19, 14, 30, 0, 0, time.Local)

func record(label string, conf float64, offset time.Duration) model.DetectionRecord {
	return model.DetectionRecord{
		Detection:  model.Detection{Label: label, Confidence: conf, Box: model.Box{XMin: 10, YMin: 20, XMax: 110, YMax: 220}},
		CapturedAt: base.Add(offset),
	}
}

type countingExporter struct {
	calls   int
	got     []model.DetectionRecord
	failErr error
}

func (e *countingExporter) Name() string { return "counting" }

func (e *countingExporter) Export(_ context.Context, _ *model.Run, records []model.DetectionRecord) error {
	e.calls++
	e.got = append([]model.DetectionRecord(nil), records...)
	return e.failErr
}

func testRun(dir string) *model.Run {
	id := model.RunID(base)
	return &model.Run{
		ID:        id,
		UUID:      "0b6c3f52-8a0e-4f39-9b7a-4f6f4e0f6a11",
		Mode:      model.Inline,
		Source:    "clip.mp4",
		VideoPath: filepath.Join(dir, "capture_"+id+".mp4"),
		LogPath:   filepath.Join(dir, "detections_"+id+".xlsx"),
		StartedAt: base,
	}
}

func TestLogAppendKeepsOrder(t *testing.T) {
	l := NewLog(logger.NewNop())

	if err := l.Append(record("person", 0.9, time.Second), record("car", 0.6, time.Second)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(record("dog", 0.7, 2*time.Second)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got := l.Records()
	if len(got) != 3 || l.Len() != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CapturedAt.Before(got[i-1].CapturedAt) {
			t.Errorf("record %d goes back in time", i)
		}
	}
	if got[0].Label != "person" || got[2].Label != "dog" {
		t.Errorf("unexpected order: %v, %v", got[0].Label, got[2].Label)
	}
}

func TestLogRejectsBadRecords(t *testing.T) {
	l := NewLog(logger.NewNop())
	if err := l.Append(record("person", 0.9, 2*time.Second)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	tests := []struct {
		name string
		rec  model.DetectionRecord
	}{
		{"earlier than stored", record("car", 0.5, time.Second)},
		{"confidence out of range", record("car", 1.5, 3*time.Second)},
		{"inverted box", model.DetectionRecord{
			Detection:  model.Detection{Label: "car", Confidence: 0.5, Box: model.Box{XMin: 9, YMin: 0, XMax: 1, YMax: 1}},
			CapturedAt: base.Add(3 * time.Second),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := l.Append(tt.rec); err == nil {
				t.Error("expected Append to fail")
			}
		})
	}

	if err := l.Append(record("a", 0.5, 4*time.Second), record("b", 0.5, 3*time.Second)); err == nil {
		t.Error("expected out-of-order batch to fail")
	}
	if l.Len() != 1 {
		t.Errorf("rejected records must not be stored, len = %d", l.Len())
	}
}

func TestFlushRunsOnce(t *testing.T) {
	exp := &countingExporter{}
	l := NewLog(logger.NewNop(), exp)
	if err := l.Append(record("person", 0.9, time.Second)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	run := testRun(t.TempDir())
	if err := l.Flush(context.Background(), run); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := l.Flush(context.Background(), run); !errors.Is(err, ErrAlreadyFlushed) {
		t.Errorf("second Flush = %v, want ErrAlreadyFlushed", err)
	}
	if err := l.Append(record("car", 0.5, 2*time.Second)); !errors.Is(err, ErrAlreadyFlushed) {
		t.Errorf("Append after flush = %v, want ErrAlreadyFlushed", err)
	}
	if exp.calls != 1 || len(exp.got) != 1 {
		t.Errorf("exporter calls = %d, records = %d; want 1, 1", exp.calls, len(exp.got))
	}
	if !l.Flushed() {
		t.Error("Flushed() = false after Flush")
	}
}

func TestFlushReportsExporterFailure(t *testing.T) {
	bad := &countingExporter{failErr: errors.New("disk full")}
	good := &countingExporter{}
	l := NewLog(logger.NewNop(), bad, good)

	err := l.Flush(context.Background(), testRun(t.TempDir()))
	if err == nil {
		t.Fatal("expected Flush to fail")
	}
	if good.calls != 1 {
		t.Error("remaining exporters should still run")
	}
}

func TestXLSXExport(t *testing.T) {
	dir := t.TempDir()
	run := testRun(dir)
	records := []model.DetectionRecord{record("person", 0.91, time.Second), record("car", 0.5, 2*time.Second)}

	if err := (XLSXExporter{}).Export(context.Background(), run, records); err != nil {
		t.Fatalf("Export: %v", err)
	}

	rows, err := ReadXLSX(run.LogPath)
	if err != nil {
		t.Fatalf("ReadXLSX: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	for i, c := range Columns {
		if rows[0][i] != c {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], c)
		}
	}
	if rows[1][0] != "person" || rows[1][2] != "2026-10-19 14:30:01" || rows[1][5] != "110" {
		t.Errorf("unexpected first row: %v", rows[1])
	}
	if rows[2][0] != "car" {
		t.Errorf("unexpected second row: %v", rows[2])
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestXLSXExportEmpty(t *testing.T) {
	run := testRun(t.TempDir())
	if err := (XLSXExporter{}).Export(context.Background(), run, nil); err != nil {
		t.Fatalf("Export: %v", err)
	}
	rows, err := ReadXLSX(run.LogPath)
	if err != nil {
		t.Fatalf("ReadXLSX: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("rows = %d, want header only", len(rows))
	}
}

func TestCSVExport(t *testing.T) {
	run := testRun(t.TempDir())
	records := []model.DetectionRecord{record("person", 0.91, time.Second)}

	if err := (CSVExporter{}).Export(context.Background(), run, records); err != nil {
		t.Fatalf("Export: %v", err)
	}

	f, err := os.Open(CSVPath(run.LogPath))
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 || rows[1][1] != "0.91" || rows[1][2] != "2026-10-19 14:30:01" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestArchiveExport(t *testing.T) {
	dir := t.TempDir()
	db, err := sqlite.New(filepath.Join(dir, "archive.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	defer db.Close()

	run := testRun(dir)
	exp := ArchiveExporter{Runs: sqlite.NewRunRepository(db)}
	if err := exp.Export(context.Background(), run, []model.DetectionRecord{record("person", 0.9, time.Second)}); err != nil {
		t.Fatalf("Export: %v", err)
	}

	got, err := sqlite.NewDetectionRepository(db).GetByRunID(run.ID)
	if err != nil {
		t.Fatalf("GetByRunID: %v", err)
	}
	if len(got) != 1 || got[0].Label != "person" {
		t.Errorf("unexpected archive contents: %+v", got)
	}
}
