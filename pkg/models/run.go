package models

import (
	"time"
)

// RunStatus represents the state of an evaluation run.
type RunStatus string

const (
	// RunStatusPending indicates the run has been created but no item
	// processing has started.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates item processing is in progress.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted indicates every item produced a result and
	// aggregate metrics were computed. Terminal.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed indicates a systemic fault or cancellation ended
	// the run early. Terminal.
	RunStatusFailed RunStatus = "failed"
)

// validTransitions is the closed transition table for run states. An
// attempted transition outside this table indicates an orchestration bug,
// not a runtime condition to recover from.
var validTransitions = map[RunStatus][]RunStatus{
	RunStatusPending: {RunStatusRunning, RunStatusFailed},
	RunStatusRunning: {RunStatusCompleted, RunStatusFailed},
}

// CanTransition reports whether moving from s to next is a legal state
// change. Terminal states allow no further transitions.
func (s RunStatus) CanTransition(next RunStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// EvaluationRun tracks one evaluation of a dataset version against a RAG
// pipeline. Created once, mutated only by the orchestrator, never deleted
// while results reference it.
type EvaluationRun struct {
	// ID is the unique identifier for the run.
	ID string `json:"id"`

	// DatasetID references the dataset being evaluated.
	DatasetID string `json:"dataset_id"`

	// DatasetVersion is the dataset version pinned at run creation.
	DatasetVersion int `json:"dataset_version"`

	// Name is the human-readable run name.
	Name string `json:"name"`

	// Description provides optional details about the run.
	Description string `json:"description,omitempty"`

	// Status is the current run state.
	Status RunStatus `json:"status"`

	// PipelineEndpoint is the RAG API endpoint. Empty means the mock
	// pipeline is used.
	PipelineEndpoint string `json:"pipeline_endpoint,omitempty"`

	// PipelineConfig carries pipeline parameters (top_k, model, etc).
	PipelineConfig map[string]any `json:"pipeline_config,omitempty"`

	// TotalItems is the item count of the pinned dataset version.
	TotalItems int `json:"total_items"`

	// CompletedItems counts items that produced a result, successful or
	// individually errored. Monotonically non-decreasing and always equal
	// to the number of persisted results for this run.
	CompletedItems int `json:"completed_items"`

	// Metrics holds the aggregate metrics, populated only once the run
	// completes. A metric with no non-nil per-item values is absent.
	Metrics map[string]float64 `json:"metrics,omitempty"`

	// ErrorMessage is set only on systemic failure or cancellation.
	ErrorMessage string `json:"error_message,omitempty"`

	// CreatedAt is when the run was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when item processing began.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the run reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the run.
func (r *EvaluationRun) Clone() *EvaluationRun {
	if r == nil {
		return nil
	}
	out := *r
	if r.PipelineConfig != nil {
		out.PipelineConfig = make(map[string]any, len(r.PipelineConfig))
		for k, v := range r.PipelineConfig {
			out.PipelineConfig[k] = v
		}
	}
	if r.Metrics != nil {
		out.Metrics = make(map[string]float64, len(r.Metrics))
		for k, v := range r.Metrics {
			out.Metrics[k] = v
		}
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
