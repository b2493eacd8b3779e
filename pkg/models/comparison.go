package models

// ComparisonReport contrasts the aggregate metrics of two completed runs.
// It is derived on demand and never persisted.
type ComparisonReport struct {
	// Run1 is the baseline run.
	Run1 *EvaluationRun `json:"run1"`

	// Run2 is the candidate run.
	Run2 *EvaluationRun `json:"run2"`

	// MetricDeltas maps metric name to run2 - run1. A metric missing on
	// one side contributes as 0 and marks the report partial.
	MetricDeltas map[string]float64 `json:"metric_deltas"`

	// ImprovementPct maps metric name to delta / run1 value x 100,
	// defined as 0 when the run1 value is 0.
	ImprovementPct map[string]float64 `json:"improvement_pct"`

	// Partial is set when any compared metric was missing on either side.
	Partial bool `json:"partial,omitempty"`
}

// InverseMetrics names the aggregate metrics where a lower value is
// better. The comparison engine itself is direction-agnostic; consumers
// use this set to invert sign when presenting deltas.
var InverseMetrics = map[string]bool{
	"hallucination_score": true,
	"hallucination_rate":  true,
}
