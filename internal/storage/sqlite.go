package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/evraghq/evrag/pkg/models"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteStore persists evaluation state in a SQLite database. Records
// are stored as JSON documents keyed by indexed identity columns, so
// schema changes to the models do not require migrations.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS datasets (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	dataset_id TEXT NOT NULL,
	status     TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS results (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset_id);
`

// NewSQLiteStore opens (or creates) a SQLite-backed store at the given
// path. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent workers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateDataset stores a dataset.
func (s *SQLiteStore) CreateDataset(ctx context.Context, ds *models.Dataset) error {
	data, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO datasets (id, name, data, created_at) VALUES (?, ?, ?, ?)`,
		ds.ID, ds.Name, string(data), ds.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// GetDataset returns a dataset by id.
func (s *SQLiteStore) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM datasets WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var ds models.Dataset
	if err := json.Unmarshal([]byte(data), &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &ds, nil
}

// ListDatasets returns datasets ordered by creation time.
func (s *SQLiteStore) ListDatasets(ctx context.Context, limit, offset int) ([]*models.Dataset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM datasets ORDER BY created_at, id LIMIT ? OFFSET ?`,
		normLimit(limit), normOffset(offset))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Dataset
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var ds models.Dataset
		if err := json.Unmarshal([]byte(data), &ds); err != nil {
			return nil, fmt.Errorf("decode dataset: %w", err)
		}
		out = append(out, &ds)
	}
	return out, rows.Err()
}

// DeleteDataset removes a dataset.
func (s *SQLiteStore) DeleteDataset(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateRun stores a run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.EvaluationRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, dataset_id, status, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.DatasetID, string(run.Status), string(data), run.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// GetRun returns a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.EvaluationRun, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM runs WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var run models.EvaluationRun
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &run, nil
}

// UpdateRun replaces a run record.
func (s *SQLiteStore) UpdateRun(ctx context.Context, run *models.EvaluationRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, data = ? WHERE id = ?`,
		string(run.Status), string(data), run.ID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRuns returns runs ordered by creation time, optionally filtered
// by dataset.
func (s *SQLiteStore) ListRuns(ctx context.Context, datasetID string, limit, offset int) ([]*models.EvaluationRun, error) {
	query := `SELECT data FROM runs ORDER BY created_at, id LIMIT ? OFFSET ?`
	args := []any{normLimit(limit), normOffset(offset)}
	if datasetID != "" {
		query = `SELECT data FROM runs WHERE dataset_id = ? ORDER BY created_at, id LIMIT ? OFFSET ?`
		args = []any{datasetID, normLimit(limit), normOffset(offset)}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.EvaluationRun
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var run models.EvaluationRun
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, &run)
	}
	return out, rows.Err()
}

// CreateResult stores one per-item result.
func (s *SQLiteStore) CreateResult(ctx context.Context, result *models.EvaluationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (id, run_id, data, created_at) VALUES (?, ?, ?, ?)`,
		result.ID, result.RunID, string(data), result.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// ListResults returns a run's results in creation order.
func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]*models.EvaluationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM results WHERE run_id = ? ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.EvaluationResult
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r models.EvaluationResult
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// CountResults returns how many results a run has.
func (s *SQLiteStore) CountResults(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM results WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

func normLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func normOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
