package repository

import (
	"videodetect/internal/model"
)

// RunRepository defines the interface for archived run operations.
type RunRepository interface {
	// Create operations
	SaveRun(run *model.Run, records []model.DetectionRecord) (int64, error)

	// Read operations
	GetByRunID(runID string) (*model.ArchivedRun, error)
	GetAll() ([]model.ArchivedRun, error)

	// Delete operations
	Delete(runID string) error
}

// DetectionRepository defines the interface for archived detection operations.
type DetectionRepository interface {
	// Read operations
	GetByRunID(runID string) ([]model.DetectionRecord, error)
	CountByLabel(runID string) (map[string]int, error)
	GetAllLabels() ([]string, error)
}
