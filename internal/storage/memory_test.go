package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evraghq/evrag/pkg/models"
)

func TestMemoryStoreDatasets(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ds := &models.Dataset{
		ID:      "ds-1",
		Name:    "golden",
		Version: 1,
		Items: []models.DatasetItem{
			{ID: "item-1", Query: "q1", GroundTruthDocs: []string{"d1", "d2"}},
		},
		CreatedAt: time.Now(),
	}
	if err := s.CreateDataset(ctx, ds); err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	if err := s.CreateDataset(ctx, ds); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate create err = %v, want ErrAlreadyExists", err)
	}

	got, err := s.GetDataset(ctx, "ds-1")
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	if got.Name != "golden" || len(got.Items) != 1 {
		t.Errorf("unexpected dataset: %+v", got)
	}

	// Mutating the returned copy must not affect the stored record.
	got.Items[0].GroundTruthDocs[0] = "mutated"
	again, _ := s.GetDataset(ctx, "ds-1")
	if again.Items[0].GroundTruthDocs[0] != "d1" {
		t.Error("stored dataset mutated through returned copy")
	}

	if _, err := s.GetDataset(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing get err = %v, want ErrNotFound", err)
	}

	if err := s.DeleteDataset(ctx, "ds-1"); err != nil {
		t.Fatalf("DeleteDataset: %v", err)
	}
	if err := s.DeleteDataset(ctx, "ds-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	run := &models.EvaluationRun{
		ID:        "run-1",
		DatasetID: "ds-1",
		Status:    models.RunStatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	run.Status = models.RunStatusRunning
	if err := s.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != models.RunStatusRunning {
		t.Errorf("status = %s, want running", got.Status)
	}

	if err := s.UpdateRun(ctx, &models.EvaluationRun{ID: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreListRunsPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i, id := range []string{"a", "b", "c", "d"} {
		dsID := "ds1"
		if i == 3 {
			dsID = "ds2"
		}
		run := &models.EvaluationRun{ID: id, DatasetID: dsID, Status: models.RunStatusPending}
		if err := s.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun %s: %v", id, err)
		}
	}

	page, err := s.ListRuns(ctx, "", 2, 1)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(page) != 2 || page[0].ID != "b" || page[1].ID != "c" {
		t.Errorf("page = %v", ids(page))
	}

	all, _ := s.ListRuns(ctx, "", 0, 0)
	if len(all) != 4 {
		t.Errorf("got %d runs, want 4", len(all))
	}

	filtered, _ := s.ListRuns(ctx, "ds2", 0, 0)
	if len(filtered) != 1 || filtered[0].ID != "d" {
		t.Errorf("dataset filter = %v, want [d]", ids(filtered))
	}

	empty, _ := s.ListRuns(ctx, "", 10, 100)
	if len(empty) != 0 {
		t.Errorf("out-of-range offset returned %d runs", len(empty))
	}
}

func TestMemoryStoreResults(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i, id := range []string{"r1", "r2", "r3"} {
		result := &models.EvaluationResult{
			ID:    id,
			RunID: "run-1",
			MRR:   models.Float(float64(i)),
		}
		if err := s.CreateResult(ctx, result); err != nil {
			t.Fatalf("CreateResult: %v", err)
		}
	}

	results, err := s.ListResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].ID != "r1" || results[2].ID != "r3" {
		t.Error("results out of creation order")
	}

	n, err := s.CountResults(ctx, "run-1")
	if err != nil || n != 3 {
		t.Errorf("CountResults = %d, %v; want 3", n, err)
	}

	n, _ = s.CountResults(ctx, "other")
	if n != 0 {
		t.Errorf("count for unknown run = %d, want 0", n)
	}
}

func ids(runs []*models.EvaluationRun) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
