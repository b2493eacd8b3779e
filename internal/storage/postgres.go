package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/evraghq/evrag/pkg/models"
)

// PostgresConfig holds connection pool settings.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns default pool settings.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// PostgresStore persists evaluation state in Postgres. Records are
// stored as JSONB documents keyed by indexed identity columns.
type PostgresStore struct {
	db *sql.DB
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS datasets (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	dataset_id TEXT NOT NULL,
	status     TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS results (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset_id);
`

// NewPostgresStoreFromDSN connects to Postgres and ensures the schema
// exists.
func NewPostgresStoreFromDSN(dsn string, config *PostgresConfig) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing database handle. The caller owns
// schema setup. Used by tests.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close releases database resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateDataset stores a dataset.
func (s *PostgresStore) CreateDataset(ctx context.Context, ds *models.Dataset) error {
	data, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO datasets (id, name, data, created_at) VALUES ($1, $2, $3, $4)`,
		ds.ID, ds.Name, data, ds.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// GetDataset returns a dataset by id.
func (s *PostgresStore) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM datasets WHERE id = $1`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var ds models.Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &ds, nil
}

// ListDatasets returns datasets ordered by creation time.
func (s *PostgresStore) ListDatasets(ctx context.Context, limit, offset int) ([]*models.Dataset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM datasets ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		pgLimit(limit), normOffset(offset))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Dataset
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var ds models.Dataset
		if err := json.Unmarshal(data, &ds); err != nil {
			return nil, fmt.Errorf("decode dataset: %w", err)
		}
		out = append(out, &ds)
	}
	return out, rows.Err()
}

// DeleteDataset removes a dataset.
func (s *PostgresStore) DeleteDataset(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = $1`, id)
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
func (s *PostgresStore) CreateRun(ctx context.Context, run *models.EvaluationRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, dataset_id, status, data, created_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.DatasetID, string(run.Status), data, run.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// GetRun returns a run by id.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.EvaluationRun, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM runs WHERE id = $1`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var run models.EvaluationRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &run, nil
}

// UpdateRun replaces a run record.
func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.EvaluationRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = $1, data = $2 WHERE id = $3`,
		string(run.Status), data, run.ID)
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
func (s *PostgresStore) ListRuns(ctx context.Context, datasetID string, limit, offset int) ([]*models.EvaluationRun, error) {
	query := `SELECT data FROM runs ORDER BY created_at, id LIMIT $1 OFFSET $2`
	args := []any{pgLimit(limit), normOffset(offset)}
	if datasetID != "" {
		query = `SELECT data FROM runs WHERE dataset_id = $1 ORDER BY created_at, id LIMIT $2 OFFSET $3`
		args = []any{datasetID, pgLimit(limit), normOffset(offset)}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.EvaluationRun
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var run models.EvaluationRun
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, &run)
	}
	return out, rows.Err()
}

// CreateResult stores one per-item result.
func (s *PostgresStore) CreateResult(ctx context.Context, result *models.EvaluationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (id, run_id, data, created_at) VALUES ($1, $2, $3, $4)`,
		result.ID, result.RunID, data, result.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// ListResults returns a run's results in creation order.
func (s *PostgresStore) ListResults(ctx context.Context, runID string) ([]*models.EvaluationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM results WHERE run_id = $1 ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.EvaluationResult
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r models.EvaluationResult
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// CountResults returns how many results a run has.
func (s *PostgresStore) CountResults(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM results WHERE run_id = $1`, runID).Scan(&n)
	return n, err
}

// pgLimit maps "no limit" to NULL-equivalent large value; Postgres has
// no -1 sentinel for LIMIT.
func pgLimit(limit int) int {
	if limit <= 0 {
		return 1 << 30
	}
	return limit
}

// Open creates a store for the given driver ("memory", "sqlite",
// "postgres") and DSN.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(dsn)
	case "postgres":
		return NewPostgresStoreFromDSN(dsn, nil)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}
