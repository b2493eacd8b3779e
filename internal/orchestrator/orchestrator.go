// Package orchestrator drives evaluation runs: it fans dataset items out
// to a bounded worker pool, invokes the pipeline under test, scores each
// response, and manages the run state machine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/evraghq/evrag/internal/evaluation"
	"github.com/evraghq/evrag/internal/observability"
	"github.com/evraghq/evrag/internal/pipeline"
	"github.com/evraghq/evrag/internal/storage"
	"github.com/evraghq/evrag/pkg/models"
)

var (
	// ErrInvalidTransition indicates an attempted run state change
	// outside the transition table.
	ErrInvalidTransition = errors.New("invalid run state transition")

	// ErrRunNotActive indicates a cancel request for a run that is not
	// pending or running.
	ErrRunNotActive = errors.New("run is not active")
)

// DefaultWorkers bounds concurrent item evaluation per run.
const DefaultWorkers = 4

// DefaultMaxConsecutiveFailures is how many items must fail in a row
// before the run is declared systemically broken.
const DefaultMaxConsecutiveFailures = 5

// DefaultTopK is how many documents are requested per query.
const DefaultTopK = 10

// Config tunes run execution.
type Config struct {
	// Workers is the max number of items evaluated concurrently.
	Workers int

	// MaxConsecutiveFailures aborts the run when this many items fail
	// back to back. Interleaved successes reset the counter.
	MaxConsecutiveFailures int

	// TopK is the per-query document count requested from the pipeline.
	TopK int

	// Logger for run events.
	Logger *slog.Logger

	// Metrics collects Prometheus metrics. Optional.
	Metrics *observability.Metrics

	// Tracer emits OpenTelemetry spans. Optional.
	Tracer *observability.Tracer
}

// PipelineFactory builds the pipeline a run evaluates. The default uses
// the run's endpoint, falling back to the mock pipeline when empty.
type PipelineFactory func(run *models.EvaluationRun) (pipeline.Pipeline, error)

// Orchestrator creates and executes evaluation runs.
type Orchestrator struct {
	store       storage.Store
	evaluator   *evaluation.Evaluator
	newPipeline PipelineFactory
	config      Config

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithPipelineFactory overrides pipeline construction. Used by tests and
// embedders that supply their own pipeline.
func WithPipelineFactory(f PipelineFactory) Option {
	return func(o *Orchestrator) {
		o.newPipeline = f
	}
}

// New creates an orchestrator.
func New(store storage.Store, evaluator *evaluation.Evaluator, config Config, opts ...Option) *Orchestrator {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.MaxConsecutiveFailures <= 0 {
		config.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	if config.Logger == nil {
		config.Logger = slog.Default().With("component", "orchestrator")
	}

	o := &Orchestrator{
		store:     store,
		evaluator: evaluator,
		config:    config,
		cancels:   make(map[string]context.CancelFunc),
	}
	o.newPipeline = func(run *models.EvaluationRun) (pipeline.Pipeline, error) {
		if run.PipelineEndpoint == "" {
			return pipeline.NewMockPipeline(), nil
		}
		return pipeline.NewHTTPPipeline(run.PipelineEndpoint), nil
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateRunRequest carries run creation parameters.
type CreateRunRequest struct {
	DatasetID        string
	Name             string
	Description      string
	PipelineEndpoint string
	PipelineConfig   map[string]any
}

// CreateRun creates a pending run pinned to the dataset's current
// version. It does not start item processing.
func (o *Orchestrator) CreateRun(ctx context.Context, req CreateRunRequest) (*models.EvaluationRun, error) {
	ds, err := o.store.GetDataset(ctx, req.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	run := &models.EvaluationRun{
		ID:               uuid.NewString(),
		DatasetID:        ds.ID,
		DatasetVersion:   ds.Version,
		Name:             req.Name,
		Description:      req.Description,
		Status:           models.RunStatusPending,
		PipelineEndpoint: req.PipelineEndpoint,
		PipelineConfig:   req.PipelineConfig,
		TotalItems:       len(ds.Items),
		CreatedAt:        time.Now().UTC(),
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("persist run: %w", err)
	}
	o.config.Logger.Info("run created",
		"run_id", run.ID, "dataset_id", ds.ID, "total_items", run.TotalItems)
	return run, nil
}

// Execute processes every item of a pending run and drives it to a
// terminal state. It blocks until the run finishes, fails, or is
// cancelled.
func (o *Orchestrator) Execute(ctx context.Context, runID string) error {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	ds, err := o.store.GetDataset(ctx, run.DatasetID)
	if err != nil {
		o.failRun(ctx, run, fmt.Sprintf("load dataset: %v", err))
		return fmt.Errorf("load dataset: %w", err)
	}
	pl, err := o.newPipeline(run)
	if err != nil {
		o.failRun(ctx, run, fmt.Sprintf("build pipeline: %v", err))
		return fmt.Errorf("build pipeline: %w", err)
	}

	if err := o.transition(ctx, run, models.RunStatusRunning); err != nil {
		return err
	}
	now := time.Now().UTC()
	run.StartedAt = &now
	if err := o.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("persist run start: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.registerCancel(run.ID, cancel)
	defer o.unregisterCancel(run.ID)

	ctx = observability.WithRun(ctx, run.ID)
	if o.config.Tracer != nil {
		var span trace.Span
		ctx, span = o.config.Tracer.TraceRun(ctx, run.ID, run.DatasetID)
		defer span.End()
	}
	if o.config.Metrics != nil {
		o.config.Metrics.ActiveRuns.Inc()
		defer o.config.Metrics.ActiveRuns.Dec()
	}
	start := time.Now()

	o.config.Logger.Info("run started",
		"run_id", run.ID, "pipeline", pl.Name(),
		"workers", o.config.Workers, "total_items", len(ds.Items))

	exec := &execution{
		orchestrator: o,
		run:          run,
		pipeline:     pl,
		sem:          make(chan struct{}, o.config.Workers),
		cancel:       cancel,
	}
	exec.process(runCtx, ctx, ds.Items)

	return o.finish(ctx, exec, start)
}

// Cancel requests cooperative cancellation of an active run. In-flight
// items finish and their results are kept; unstarted items are never
// dispatched.
func (o *Orchestrator) Cancel(ctx context.Context, runID string) error {
	o.mu.Lock()
	cancel, active := o.cancels[runID]
	o.mu.Unlock()
	if active {
		cancel()
		o.config.Logger.Info("run cancellation requested", "run_id", runID)
		return nil
	}

	// A pending run has no workers to stop; fail it directly.
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.RunStatusPending {
		return fmt.Errorf("%w: run %s is %s", ErrRunNotActive, runID, run.Status)
	}
	o.failRun(ctx, run, "run cancelled")
	return nil
}

// GetRun returns a run by id.
func (o *Orchestrator) GetRun(ctx context.Context, runID string) (*models.EvaluationRun, error) {
	return o.store.GetRun(ctx, runID)
}

// ListRuns returns runs in creation order. An empty datasetID matches
// every run.
func (o *Orchestrator) ListRuns(ctx context.Context, datasetID string, limit, offset int) ([]*models.EvaluationRun, error) {
	return o.store.ListRuns(ctx, datasetID, limit, offset)
}

// Results returns a run's per-item results.
func (o *Orchestrator) Results(ctx context.Context, runID string) ([]*models.EvaluationResult, error) {
	return o.store.ListResults(ctx, runID)
}

// execution is the mutable state of one in-flight run.
type execution struct {
	orchestrator *Orchestrator
	run          *models.EvaluationRun
	pipeline     pipeline.Pipeline
	sem          chan struct{}
	cancel       context.CancelFunc

	mu          sync.Mutex
	completed   int
	consecutive int
	systemicErr string
	wg          sync.WaitGroup
}

// process dispatches items to workers until done or cancelled. runCtx
// gates dispatch and item work; storeCtx outlives cancellation so results
// of in-flight items still persist.
func (e *execution) process(runCtx, storeCtx context.Context, items []models.DatasetItem) {
	for i := range items {
		select {
		case <-runCtx.Done():
			e.wg.Wait()
			return
		case e.sem <- struct{}{}:
		}
		// Re-check after acquiring a slot; a cancel during a long item
		// must not dispatch the next one.
		if runCtx.Err() != nil {
			<-e.sem
			e.wg.Wait()
			return
		}

		item := items[i]
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer func() { <-e.sem }()
			e.processItem(runCtx, storeCtx, &item)
		}()
	}
	e.wg.Wait()
}

func (e *execution) processItem(runCtx, storeCtx context.Context, item *models.DatasetItem) {
	o := e.orchestrator
	itemStart := time.Now()

	result := e.evaluateItem(runCtx, item)
	if result == nil {
		// Cancelled before producing anything; drop silently.
		return
	}

	result.ID = uuid.NewString()
	result.RunID = e.run.ID
	result.CreatedAt = time.Now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.systemicErr != "" {
		// Run already declared broken; stop recording.
		return
	}

	if err := o.store.CreateResult(storeCtx, result); err != nil {
		o.config.Logger.Error("persist result failed",
			"run_id", e.run.ID, "item_id", item.ID, "error", err)
		if o.config.Metrics != nil {
			o.config.Metrics.ErrorCounter.WithLabelValues("storage", "persist").Inc()
		}
		e.systemicErr = fmt.Sprintf("persist result: %v", err)
		e.cancel()
		return
	}
	e.completed++

	// completed_items tracks persisted results exactly.
	e.run.CompletedItems = e.completed
	if err := o.store.UpdateRun(storeCtx, e.run); err != nil {
		o.config.Logger.Error("persist run progress failed",
			"run_id", e.run.ID, "error", err)
	}

	if o.config.Metrics != nil {
		o.config.Metrics.ItemDuration.Observe(time.Since(itemStart).Seconds())
	}

	if result.Error != "" {
		if o.config.Metrics != nil {
			o.config.Metrics.ItemsEvaluated.WithLabelValues("error").Inc()
		}
		e.consecutive++
		o.config.Logger.Warn("item failed",
			"run_id", e.run.ID, "item_id", item.ID,
			"consecutive_failures", e.consecutive, "error", result.Error)
		if e.consecutive >= o.config.MaxConsecutiveFailures {
			e.systemicErr = fmt.Sprintf(
				"%d consecutive item failures, last: %s",
				e.consecutive, result.Error)
			e.cancel()
		}
		return
	}

	if o.config.Metrics != nil {
		o.config.Metrics.ItemsEvaluated.WithLabelValues("success").Inc()
	}
	e.consecutive = 0
}

// evaluateItem invokes the pipeline and scores the response. Returns nil
// when the run was cancelled mid-item, a result with Error set on
// per-item failure.
func (e *execution) evaluateItem(ctx context.Context, item *models.DatasetItem) *models.EvaluationResult {
	o := e.orchestrator
	ctx = observability.WithItem(observability.WithRun(ctx, e.run.ID), item.ID)
	if o.config.Tracer != nil {
		var span trace.Span
		ctx, span = o.config.Tracer.TraceItem(ctx, item.ID)
		defer span.End()
	}

	pipelineStart := time.Now()
	invokeCtx := ctx
	var pipeSpan trace.Span
	if o.config.Tracer != nil {
		invokeCtx, pipeSpan = o.config.Tracer.TracePipelineInvoke(ctx, e.pipeline.Name())
	}
	resp, err := e.pipeline.Invoke(invokeCtx, item.Query, o.config.TopK)
	if pipeSpan != nil {
		o.config.Tracer.RecordError(pipeSpan, err)
		pipeSpan.End()
	}
	if o.config.Metrics != nil {
		o.config.Metrics.PipelineRequestDuration.
			WithLabelValues(e.pipeline.Name()).
			Observe(time.Since(pipelineStart).Seconds())
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if o.config.Metrics != nil {
			o.config.Metrics.ErrorCounter.WithLabelValues("pipeline", "invoke").Inc()
		}
		return &models.EvaluationResult{
			DatasetItemID: item.ID,
			Error:         err.Error(),
		}
	}

	result, err := o.evaluator.Evaluate(ctx, item, resp.RetrievedDocs, resp.Answer)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if o.config.Metrics != nil {
			o.config.Metrics.ErrorCounter.WithLabelValues("orchestrator", "evaluate").Inc()
		}
		return &models.EvaluationResult{
			DatasetItemID: item.ID,
			Error:         err.Error(),
		}
	}
	return result
}

// finish drives the run to its terminal state.
func (o *Orchestrator) finish(ctx context.Context, exec *execution, start time.Time) error {
	run := exec.run

	exec.mu.Lock()
	systemicErr := exec.systemicErr
	completed := exec.completed
	exec.mu.Unlock()

	switch {
	case systemicErr != "":
		o.failRun(ctx, run, systemicErr)
		o.observeFinish(start, "failed")
		return fmt.Errorf("run %s failed: %s", run.ID, systemicErr)

	case ctx.Err() != nil || completed < run.TotalItems:
		// Cancellation: every dispatched item has a persisted result,
		// the rest were never started.
		o.failRun(ctx, run, "run cancelled")
		o.observeFinish(start, "failed")
		return context.Canceled

	default:
		results, err := o.store.ListResults(ctx, run.ID)
		if err != nil {
			o.failRun(ctx, run, fmt.Sprintf("load results: %v", err))
			o.observeFinish(start, "failed")
			return fmt.Errorf("load results: %w", err)
		}
		run.Metrics = Aggregate(results)
		if err := o.transition(ctx, run, models.RunStatusCompleted); err != nil {
			return err
		}
		o.observeFinish(start, "completed")
		o.config.Logger.Info("run completed",
			"run_id", run.ID, "items", completed,
			"duration", time.Since(start).Round(time.Millisecond))
		return nil
	}
}

func (o *Orchestrator) observeFinish(start time.Time, status string) {
	if o.config.Metrics == nil {
		return
	}
	o.config.Metrics.RunsFinished.WithLabelValues(status).Inc()
	o.config.Metrics.RunDuration.Observe(time.Since(start).Seconds())
}

// transition applies a state change, enforcing the transition table, and
// persists the run. Terminal transitions stamp CompletedAt.
func (o *Orchestrator) transition(ctx context.Context, run *models.EvaluationRun, next models.RunStatus) error {
	if !run.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.Status, next)
	}
	run.Status = next
	if next.Terminal() {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}
	return o.store.UpdateRun(ctx, run)
}

func (o *Orchestrator) failRun(ctx context.Context, run *models.EvaluationRun, msg string) {
	run.ErrorMessage = msg
	if err := o.transition(ctx, run, models.RunStatusFailed); err != nil {
		o.config.Logger.Error("failed to mark run as failed",
			"run_id", run.ID, "error", err)
		return
	}
	o.config.Logger.Warn("run failed", "run_id", run.ID, "reason", msg)
}

func (o *Orchestrator) registerCancel(runID string, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancels[runID] = cancel
}

func (o *Orchestrator) unregisterCancel(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cancels, runID)
}
