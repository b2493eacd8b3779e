package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/evraghq/evrag/pkg/models"
)

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *PostgresStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return mock, NewPostgresStore(db)
}

func TestPostgresStore_CreateRun(t *testing.T) {
	mock, store := setupMockDB(t)

	run := &models.EvaluationRun{
		ID:        "run-1",
		DatasetID: "ds-1",
		Status:    models.RunStatusPending,
		CreatedAt: time.Now(),
	}
	data, _ := json.Marshal(run)

	mock.ExpectExec("INSERT INTO runs").
		WithArgs("run-1", "ds-1", "pending", data, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_CreateRunDuplicate(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectExec("INSERT INTO runs").
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.CreateRun(context.Background(), &models.EvaluationRun{ID: "run-1"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestPostgresStore_GetRun(t *testing.T) {
	mock, store := setupMockDB(t)

	run := &models.EvaluationRun{
		ID:     "run-1",
		Status: models.RunStatusCompleted,
		Metrics: map[string]float64{
			"mrr": 0.75,
		},
	}
	data, _ := json.Marshal(run)

	mock.ExpectQuery("SELECT data FROM runs WHERE id").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(data))

	got, err := store.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != models.RunStatusCompleted || got.Metrics["mrr"] != 0.75 {
		t.Errorf("unexpected run: %+v", got)
	}
}

func TestPostgresStore_GetRunNotFound(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectQuery("SELECT data FROM runs WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	_, err := store.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_UpdateRunNotFound(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectExec("UPDATE runs SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateRun(context.Background(), &models.EvaluationRun{ID: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_ListResults(t *testing.T) {
	mock, store := setupMockDB(t)

	r1, _ := json.Marshal(&models.EvaluationResult{ID: "r1", RunID: "run-1"})
	r2, _ := json.Marshal(&models.EvaluationResult{ID: "r2", RunID: "run-1"})

	mock.ExpectQuery("SELECT data FROM results WHERE run_id").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(r1).AddRow(r2))

	results, err := store.ListResults(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 2 || results[0].ID != "r1" {
		t.Errorf("unexpected results: %v", results)
	}
}

func TestPostgresStore_CountResults(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := store.CountResults(context.Background(), "run-1")
	if err != nil || n != 7 {
		t.Fatalf("CountResults = %d, %v; want 7", n, err)
	}
}
