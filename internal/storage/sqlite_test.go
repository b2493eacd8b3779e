package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evraghq/evrag/pkg/models"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreDatasetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	ds := &models.Dataset{
		ID:      "ds-1",
		Name:    "golden",
		Version: 2,
		Items: []models.DatasetItem{
			{ID: "item-1", Query: "q1", GroundTruthDocs: []string{"d1"}},
		},
		TotalItems: 1,
		CreatedAt:  time.Now().UTC(),
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
	if got.Name != "golden" || got.Version != 2 || len(got.Items) != 1 {
		t.Errorf("unexpected dataset: %+v", got)
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

func TestSQLiteStoreRunUpdate(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	run := &models.EvaluationRun{
		ID:         "run-1",
		DatasetID:  "ds-1",
		Status:     models.RunStatusPending,
		TotalItems: 3,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	run.Status = models.RunStatusCompleted
	run.CompletedItems = 3
	run.Metrics = map[string]float64{"mrr": 0.75}
	if err := s.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != models.RunStatusCompleted || got.CompletedItems != 3 {
		t.Errorf("unexpected run: %+v", got)
	}
	if got.Metrics["mrr"] != 0.75 {
		t.Errorf("metrics = %v", got.Metrics)
	}

	if err := s.UpdateRun(ctx, &models.EvaluationRun{ID: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreListRunsFilter(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		dsID := "ds1"
		if i == 2 {
			dsID = "ds2"
		}
		run := &models.EvaluationRun{
			ID:        id,
			DatasetID: dsID,
			Status:    models.RunStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun %s: %v", id, err)
		}
	}

	all, err := s.ListRuns(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a" || all[2].ID != "c" {
		t.Errorf("unexpected order: %v", runIDs(all))
	}

	filtered, err := s.ListRuns(ctx, "ds2", 0, 0)
	if err != nil {
		t.Fatalf("ListRuns filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != "c" {
		t.Errorf("dataset filter = %v, want [c]", runIDs(filtered))
	}

	page, err := s.ListRuns(ctx, "", 1, 1)
	if err != nil {
		t.Fatalf("ListRuns page: %v", err)
	}
	if len(page) != 1 || page[0].ID != "b" {
		t.Errorf("page = %v, want [b]", runIDs(page))
	}
}

func TestSQLiteStoreResults(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	base := time.Now().UTC()
	for i, id := range []string{"r1", "r2"} {
		result := &models.EvaluationResult{
			ID:                 id,
			RunID:              "run-1",
			MRR:                models.Float(float64(i)),
			HallucinationScore: models.Float(0.2),
			HallucinatedSpans:  []string{"an unsupported claim"},
			CreatedAt:          base.Add(time.Duration(i) * time.Second),
		}
		if err := s.CreateResult(ctx, result); err != nil {
			t.Fatalf("CreateResult: %v", err)
		}
	}

	results, err := s.ListResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 2 || results[0].ID != "r1" {
		t.Errorf("unexpected results: %v", results)
	}
	// Nullable metric fields survive the JSON round trip.
	if results[0].MRR == nil || *results[0].MRR != 0 {
		t.Errorf("mrr = %v, want 0 (not nil)", results[0].MRR)
	}
	if results[0].MAP != nil {
		t.Errorf("map = %v, want nil", results[0].MAP)
	}
	if len(results[0].HallucinatedSpans) != 1 {
		t.Errorf("spans = %v", results[0].HallucinatedSpans)
	}

	n, err := s.CountResults(ctx, "run-1")
	if err != nil || n != 2 {
		t.Errorf("CountResults = %d, %v; want 2", n, err)
	}
	n, _ = s.CountResults(ctx, "other")
	if n != 0 {
		t.Errorf("count for unknown run = %d, want 0", n)
	}
}

func runIDs(runs []*models.EvaluationRun) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
