// Package compare contrasts the aggregate metrics of two completed
// evaluation runs.
package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/evraghq/evrag/internal/storage"
	"github.com/evraghq/evrag/pkg/models"
)

// ErrNotCompleted indicates a comparison request involving a run that
// has not reached the completed state.
var ErrNotCompleted = errors.New("run is not completed")

// Engine computes run comparisons on demand.
type Engine struct {
	store  storage.RunStore
	logger *slog.Logger
}

// New creates a comparison engine.
func New(store storage.RunStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default().With("component", "compare")
	}
	return &Engine{store: store, logger: logger}
}

// Compare builds a report of run2 against baseline run1. Both runs must
// be completed. Metrics present on only one side contribute a zero for
// the missing side and mark the report partial.
func (e *Engine) Compare(ctx context.Context, run1ID, run2ID string) (*models.ComparisonReport, error) {
	run1, err := e.loadCompleted(ctx, run1ID)
	if err != nil {
		return nil, err
	}
	run2, err := e.loadCompleted(ctx, run2ID)
	if err != nil {
		return nil, err
	}

	report := &models.ComparisonReport{
		Run1:           run1,
		Run2:           run2,
		MetricDeltas:   make(map[string]float64),
		ImprovementPct: make(map[string]float64),
	}

	for _, name := range unionKeys(run1.Metrics, run2.Metrics) {
		v1, ok1 := run1.Metrics[name]
		v2, ok2 := run2.Metrics[name]
		if !ok1 || !ok2 {
			report.Partial = true
		}

		delta := v2 - v1
		report.MetricDeltas[name] = delta
		if v1 != 0 {
			report.ImprovementPct[name] = delta / v1 * 100
		} else {
			report.ImprovementPct[name] = 0
		}
	}

	e.logger.Debug("runs compared",
		"run1", run1.ID, "run2", run2.ID,
		"metrics", len(report.MetricDeltas), "partial", report.Partial)
	return report, nil
}

func (e *Engine) loadCompleted(ctx context.Context, runID string) (*models.EvaluationRun, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	if run.Status != models.RunStatusCompleted {
		return nil, fmt.Errorf("%w: run %s is %s", ErrNotCompleted, runID, run.Status)
	}
	return run, nil
}

func unionKeys(a, b map[string]float64) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
