package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/evraghq/evrag/internal/evaluation"
	"github.com/evraghq/evrag/internal/evaluation/generation"
	"github.com/evraghq/evrag/internal/evaluation/hallucination"
	"github.com/evraghq/evrag/internal/observability"
	"github.com/evraghq/evrag/internal/pipeline"
	"github.com/evraghq/evrag/internal/storage"
	"github.com/evraghq/evrag/pkg/models"
)

// scriptedPipeline is a deterministic pipeline whose behavior is keyed
// by query text, with an optional per-call hook.
type scriptedPipeline struct {
	mu       sync.Mutex
	calls    int
	failFor  map[string]bool
	onInvoke func(call int)
}

func (p *scriptedPipeline) Invoke(ctx context.Context, query string, topK int) (*pipeline.Response, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.mu.Unlock()

	if p.onInvoke != nil {
		p.onInvoke(call)
	}
	if p.failFor[query] {
		return nil, fmt.Errorf("%w: connection refused", pipeline.ErrInvocation)
	}
	return &pipeline.Response{
		RetrievedDocs: []models.RetrievedDoc{
			{ID: "d1", Text: "The capital of France is Paris. It is a large city."},
			{ID: "d2", Text: "France is a country in Europe with many regions."},
		},
		Answer: "The capital of France is Paris. It is a large city.",
	}, nil
}

func (p *scriptedPipeline) Name() string { return "scripted" }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvaluator() *evaluation.Evaluator {
	gen := generation.NewCalculator(nil, &generation.Options{Logger: quietLogger()})
	det := hallucination.NewDetector(quietLogger())
	det.Register(hallucination.NewCitationSignal(hallucination.DefaultCitationThreshold), hallucination.DefaultCitationWeight)
	return evaluation.New(gen, det, &evaluation.Options{
		KValues: []int{1, 3},
		Logger:  quietLogger(),
	})
}

func testDataset(n int) *models.Dataset {
	ds := &models.Dataset{
		ID:        "ds-1",
		Name:      "test",
		Version:   1,
		CreatedAt: time.Now(),
	}
	for i := 1; i <= n; i++ {
		ds.Items = append(ds.Items, models.DatasetItem{
			ID:              fmt.Sprintf("item-%d", i),
			DatasetID:       ds.ID,
			Query:           fmt.Sprintf("q%d", i),
			GroundTruthDocs: []string{"d1"},
		})
	}
	ds.TotalItems = n
	return ds
}

func newTestOrchestrator(t *testing.T, store storage.Store, pl pipeline.Pipeline, cfg Config) *Orchestrator {
	t.Helper()
	cfg.Logger = quietLogger()
	return New(store, testEvaluator(), cfg,
		WithPipelineFactory(func(*models.EvaluationRun) (pipeline.Pipeline, error) {
			return pl, nil
		}))
}

func TestExecuteCompletesRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.CreateDataset(ctx, testDataset(5)); err != nil {
		t.Fatal(err)
	}

	o := newTestOrchestrator(t, store, &scriptedPipeline{}, Config{Workers: 2})
	run, err := o.CreateRun(ctx, CreateRunRequest{DatasetID: "ds-1", Name: "baseline"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.Status != models.RunStatusPending || run.TotalItems != 5 {
		t.Fatalf("unexpected run: %+v", run)
	}

	if err := o.Execute(ctx, run.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got, _ := o.GetRun(ctx, run.ID)
	if got.Status != models.RunStatusCompleted {
		t.Errorf("status = %s, want completed (error: %s)", got.Status, got.ErrorMessage)
	}
	if got.CompletedItems != 5 {
		t.Errorf("completed_items = %d, want 5", got.CompletedItems)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Error("missing start/completion timestamps")
	}
	if len(got.Metrics) == 0 {
		t.Fatal("expected aggregate metrics")
	}
	if got.Metrics["recall@1"] != 1.0 {
		t.Errorf("recall@1 = %f, want 1.0", got.Metrics["recall@1"])
	}

	results, _ := o.Results(ctx, run.ID)
	if len(results) != got.CompletedItems {
		t.Errorf("results = %d, completed_items = %d; must match", len(results), got.CompletedItems)
	}
}

func TestExecuteIsolatesItemFailures(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.CreateDataset(ctx, testDataset(10)); err != nil {
		t.Fatal(err)
	}

	pl := &scriptedPipeline{failFor: map[string]bool{"q4": true}}
	o := newTestOrchestrator(t, store, pl, Config{Workers: 1})
	run, _ := o.CreateRun(ctx, CreateRunRequest{DatasetID: "ds-1"})

	if err := o.Execute(ctx, run.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got, _ := o.GetRun(ctx, run.ID)
	if got.Status != models.RunStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.CompletedItems != 10 {
		t.Errorf("completed_items = %d, want 10", got.CompletedItems)
	}

	results, _ := o.Results(ctx, run.ID)
	if len(results) != 10 {
		t.Fatalf("got %d results, want 10", len(results))
	}
	var failed *models.EvaluationResult
	for _, r := range results {
		if r.DatasetItemID == "item-4" {
			failed = r
		}
	}
	if failed == nil {
		t.Fatal("no result recorded for the failing item")
	}
	if failed.Error == "" {
		t.Error("failing item should carry an error")
	}
	if failed.MRR != nil || failed.HallucinationScore != nil {
		t.Error("failing item should have nil metrics")
	}
}

func TestExecuteSystemicFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.CreateDataset(ctx, testDataset(10)); err != nil {
		t.Fatal(err)
	}

	pl := &scriptedPipeline{failFor: map[string]bool{}}
	for i := 1; i <= 10; i++ {
		pl.failFor[fmt.Sprintf("q%d", i)] = true
	}
	o := newTestOrchestrator(t, store, pl, Config{Workers: 1, MaxConsecutiveFailures: 3})
	run, _ := o.CreateRun(ctx, CreateRunRequest{DatasetID: "ds-1"})

	err := o.Execute(ctx, run.ID)
	if err == nil {
		t.Fatal("expected error from systemically failing run")
	}

	got, _ := o.GetRun(ctx, run.ID)
	if got.Status != models.RunStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "consecutive") {
		t.Errorf("error message = %q, want consecutive failure reason", got.ErrorMessage)
	}

	results, _ := o.Results(ctx, run.ID)
	if len(results) != 3 {
		t.Errorf("got %d results, want 3 (one per failure before abort)", len(results))
	}
	if got.CompletedItems != len(results) {
		t.Errorf("completed_items = %d, results = %d; must match", got.CompletedItems, len(results))
	}
}

func TestExecuteConsecutiveFailuresResetOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.CreateDataset(ctx, testDataset(9)); err != nil {
		t.Fatal(err)
	}

	// Two failures, a success, then two more failures: never three in a
	// row, so the run must complete.
	pl := &scriptedPipeline{failFor: map[string]bool{
		"q1": true, "q2": true, "q4": true, "q5": true,
	}}
	o := newTestOrchestrator(t, store, pl, Config{Workers: 1, MaxConsecutiveFailures: 3})
	run, _ := o.CreateRun(ctx, CreateRunRequest{DatasetID: "ds-1"})

	if err := o.Execute(ctx, run.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got, _ := o.GetRun(ctx, run.ID)
	if got.Status != models.RunStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.CompletedItems != 9 {
		t.Errorf("completed_items = %d, want 9", got.CompletedItems)
	}
}

func TestCancelMidRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.CreateDataset(ctx, testDataset(100)); err != nil {
		t.Fatal(err)
	}

	pl := &scriptedPipeline{}
	o := newTestOrchestrator(t, store, pl, Config{Workers: 1})
	run, _ := o.CreateRun(ctx, CreateRunRequest{DatasetID: "ds-1"})

	// Cancel while the 40th item is in flight. The in-flight item
	// finishes and persists; nothing after it is dispatched.
	pl.onInvoke = func(call int) {
		if call == 40 {
			if err := o.Cancel(context.Background(), run.ID); err != nil {
				t.Errorf("Cancel: %v", err)
			}
		}
	}

	err := o.Execute(ctx, run.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute err = %v, want context.Canceled", err)
	}

	got, _ := o.GetRun(ctx, run.ID)
	if got.Status != models.RunStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.ErrorMessage != "run cancelled" {
		t.Errorf("error message = %q", got.ErrorMessage)
	}

	results, _ := o.Results(ctx, run.ID)
	if len(results) != 40 {
		t.Errorf("got %d results, want exactly 40", len(results))
	}
	if got.CompletedItems != len(results) {
		t.Errorf("completed_items = %d, results = %d; must match", got.CompletedItems, len(results))
	}
}

func TestCancelPendingRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.CreateDataset(ctx, testDataset(3)); err != nil {
		t.Fatal(err)
	}

	o := newTestOrchestrator(t, store, &scriptedPipeline{}, Config{})
	run, _ := o.CreateRun(ctx, CreateRunRequest{DatasetID: "ds-1"})

	if err := o.Cancel(ctx, run.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, _ := o.GetRun(ctx, run.ID)
	if got.Status != models.RunStatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestCancelTerminalRunRejected(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.CreateDataset(ctx, testDataset(2)); err != nil {
		t.Fatal(err)
	}

	o := newTestOrchestrator(t, store, &scriptedPipeline{}, Config{})
	run, _ := o.CreateRun(ctx, CreateRunRequest{DatasetID: "ds-1"})
	if err := o.Execute(ctx, run.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	err := o.Cancel(ctx, run.ID)
	if !errors.Is(err, ErrRunNotActive) {
		t.Errorf("err = %v, want ErrRunNotActive", err)
	}
}

func TestExecuteRejectsTerminalRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.CreateDataset(ctx, testDataset(2)); err != nil {
		t.Fatal(err)
	}

	o := newTestOrchestrator(t, store, &scriptedPipeline{}, Config{})
	run, _ := o.CreateRun(ctx, CreateRunRequest{DatasetID: "ds-1"})
	if err := o.Execute(ctx, run.ID); err != nil {
		t.Fatalf("first Execute: %v", err)
	}

	err := o.Execute(ctx, run.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestCreateRunUnknownDataset(t *testing.T) {
	o := newTestOrchestrator(t, storage.NewMemoryStore(), &scriptedPipeline{}, Config{})
	_, err := o.CreateRun(context.Background(), CreateRunRequest{DatasetID: "missing"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// isolatedMetrics builds a Metrics handle on a private registry so the
// test can assert exact counts.
func isolatedMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	registry := prometheus.NewRegistry()
	m := &observability.Metrics{
		RunsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_runs_finished_total", Help: "t"},
			[]string{"status"}),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{Name: "test_run_duration_seconds", Help: "t"}),
		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "test_active_runs", Help: "t"}),
		ItemsEvaluated: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_items_evaluated_total", Help: "t"},
			[]string{"status"}),
		ItemDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{Name: "test_item_duration_seconds", Help: "t"}),
		PipelineRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "test_pipeline_request_duration_seconds", Help: "t"},
			[]string{"pipeline"}),
		ErrorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_errors_total", Help: "t"},
			[]string{"component", "error_type"}),
	}
	registry.MustRegister(m.RunsFinished, m.RunDuration, m.ActiveRuns,
		m.ItemsEvaluated, m.ItemDuration, m.PipelineRequestDuration, m.ErrorCounter)
	return m
}

func TestExecuteRecordsMetricsAndSpans(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.CreateDataset(ctx, testDataset(4)); err != nil {
		t.Fatal(err)
	}

	metrics := isolatedMetrics(t)
	tracer, shutdown := observability.NewTracer(observability.TraceConfig{})
	defer shutdown(ctx)

	pl := &scriptedPipeline{failFor: map[string]bool{"q2": true}}
	o := newTestOrchestrator(t, store, pl, Config{
		Workers: 1,
		Metrics: metrics,
		Tracer:  tracer,
	})
	run, err := o.CreateRun(ctx, CreateRunRequest{DatasetID: "ds-1"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := o.Execute(ctx, run.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := testutil.ToFloat64(metrics.ItemsEvaluated.WithLabelValues("success")); got != 3 {
		t.Errorf("items success = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.ItemsEvaluated.WithLabelValues("error")); got != 1 {
		t.Errorf("items error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ErrorCounter.WithLabelValues("pipeline", "invoke")); got != 1 {
		t.Errorf("pipeline errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.RunsFinished.WithLabelValues("completed")); got != 1 {
		t.Errorf("runs completed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ActiveRuns); got != 0 {
		t.Errorf("active runs = %v, want 0 after completion", got)
	}
}
