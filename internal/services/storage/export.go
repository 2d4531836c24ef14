package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"videodetect/internal/model"
	"videodetect/internal/repository"
)

// TimestampLayout is how capture times appear in the tabular exports.
const TimestampLayout = "2006-01-02 15:04:05"

// Columns is the fixed header of every tabular export.
var Columns = []string{"Classe", "Confiança", "Data e Hora", "Xmin", "Ymin", "Xmax", "Ymax"}

const sheetName = "Sheet1"

func row(rec model.DetectionRecord) []interface{} {
	return []interface{}{
		rec.Label,
		rec.Confidence,
		rec.CapturedAt.Format(TimestampLayout),
		rec.Box.XMin,
		rec.Box.YMin,
		rec.Box.XMax,
		rec.Box.YMax,
	}
}

// writeAtomic writes through a temp file in the destination directory and
// renames it into place, so readers never see a partial file.
func writeAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}

// XLSXExporter writes the run's LogPath as an Excel workbook.
type XLSXExporter struct{}

func (XLSXExporter) Name() string { return "xlsx" }

func (XLSXExporter) Export(ctx context.Context, run *model.Run, records []model.DetectionRecord) error {
	return WriteXLSX(ctx, run.LogPath, records)
}

// WriteXLSX writes records to path, one row per detection after the header.
func WriteXLSX(ctx context.Context, path string, records []model.DetectionRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row(rec)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	return writeAtomic(path, func(w io.Writer) error {
		if _, err := f.WriteTo(w); err != nil {
			return fmt.Errorf("failed to write workbook: %w", err)
		}
		return nil
	})
}

// ReadXLSX loads the rows written by WriteXLSX, header included.
func ReadXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return f.GetRows(sheetName)
}

// CSVExporter writes the same table next to the workbook as CSV.
type CSVExporter struct{}

func (CSVExporter) Name() string { return "csv" }

func (CSVExporter) Export(ctx context.Context, run *model.Run, records []model.DetectionRecord) error {
	return writeAtomic(CSVPath(run.LogPath), func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(Columns); err != nil {
			return err
		}
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := cw.Write([]string{
				rec.Label,
				strconv.FormatFloat(rec.Confidence, 'f', -1, 64),
				rec.CapturedAt.Format(TimestampLayout),
				strconv.FormatFloat(rec.Box.XMin, 'f', -1, 64),
				strconv.FormatFloat(rec.Box.YMin, 'f', -1, 64),
				strconv.FormatFloat(rec.Box.XMax, 'f', -1, 64),
				strconv.FormatFloat(rec.Box.YMax, 'f', -1, 64),
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// CSVPath derives the CSV file name from the workbook path.
func CSVPath(logPath string) string {
	return strings.TrimSuffix(logPath, filepath.Ext(logPath)) + ".csv"
}

// ArchiveExporter stores the run and its detections in the database.
type ArchiveExporter struct {
	Runs repository.RunRepository
}

func (ArchiveExporter) Name() string { return "archive" }

func (a ArchiveExporter) Export(ctx context.Context, run *model.Run, records []model.DetectionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := a.Runs.SaveRun(run, records)
	return err
}
