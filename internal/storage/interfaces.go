// Package storage persists datasets, evaluation runs, and per-item
// results. Implementations exist for in-memory, SQLite, and Postgres
// backends.
package storage

import (
	"context"
	"errors"

	"github.com/evraghq/evrag/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// DatasetStore persists evaluation datasets and their items.
type DatasetStore interface {
	CreateDataset(ctx context.Context, ds *models.Dataset) error
	GetDataset(ctx context.Context, id string) (*models.Dataset, error)
	ListDatasets(ctx context.Context, limit, offset int) ([]*models.Dataset, error)
	DeleteDataset(ctx context.Context, id string) error
}

// RunStore persists evaluation run records.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.EvaluationRun) error
	GetRun(ctx context.Context, id string) (*models.EvaluationRun, error)
	UpdateRun(ctx context.Context, run *models.EvaluationRun) error

	// ListRuns returns runs in creation order. An empty datasetID
	// matches every run.
	ListRuns(ctx context.Context, datasetID string, limit, offset int) ([]*models.EvaluationRun, error)
}

// ResultStore persists per-item evaluation results. Results are written
// once and never updated.
type ResultStore interface {
	CreateResult(ctx context.Context, result *models.EvaluationResult) error
	ListResults(ctx context.Context, runID string) ([]*models.EvaluationResult, error)
	CountResults(ctx context.Context, runID string) (int, error)
}

// Store groups all persistence concerns behind one interface.
type Store interface {
	DatasetStore
	RunStore
	ResultStore

	// Close releases any underlying resources.
	Close() error
}
