package sqlite

import (
	"database/sql"
	"fmt"

	"videodetect/internal/model"
)

// RunRepository implements repository.RunRepository for SQLite.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new SQLite run repository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// SaveRun stores the run and all of its detections in a single transaction.
// Either everything is written or nothing is.
func (r *RunRepository) SaveRun(run *model.Run, records []model.DetectionRecord) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO runs (run_id, uuid, mode, source, video_path, log_path, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.UUID, run.Mode.String(), run.Source, run.VideoPath, run.LogPath, run.StartedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO detections (run_id, seq, label, confidence, captured_at, xmin, ymin, xmax, ymax)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.Exec(id, i, rec.Label, rec.Confidence, rec.CapturedAt,
			rec.Box.XMin, rec.Box.YMin, rec.Box.XMax, rec.Box.YMax); err != nil {
			return 0, fmt.Errorf("failed to insert detection %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

const runColumns = `
	SELECT r.id, r.run_id, r.uuid, r.mode, r.source, r.video_path, r.log_path, r.started_at,
		(SELECT COUNT(*) FROM detections d WHERE d.run_id = r.id)
	FROM runs r`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*model.ArchivedRun, error) {
	var run model.ArchivedRun
	var mode string
	if err := row.Scan(&run.DBID, &run.ID, &run.UUID, &mode, &run.Source, &run.VideoPath,
		&run.LogPath, &run.StartedAt, &run.Detections); err != nil {
		return nil, err
	}
	m, err := model.ParseMode(mode)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	run.Mode = m
	return &run, nil
}

// GetByRunID retrieves a run by its identifier. Returns nil when absent.
func (r *RunRepository) GetByRunID(runID string) (*model.ArchivedRun, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	run, err := scanRun(r.db.Conn().QueryRow(runColumns+` WHERE r.run_id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetAll returns every archived run, newest first.
func (r *RunRepository) GetAll() ([]model.ArchivedRun, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(runColumns + ` ORDER BY r.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []model.ArchivedRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Delete removes a run together with its detections.
func (r *RunRepository) Delete(runID string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM runs WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}
