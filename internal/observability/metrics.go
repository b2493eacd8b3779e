package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting evaluation
// metrics.
//
// Built on Prometheus, tracking:
//   - Run throughput and duration
//   - Per-item evaluation outcomes and latency
//   - Pipeline invocation performance
//   - LLM judge and embedding provider usage
//   - Error rates by component
type Metrics struct {
	// RunsStarted counts evaluation runs by terminal status.
	// Labels: status (completed|failed)
	RunsFinished *prometheus.CounterVec

	// RunDuration measures total run wall time in seconds.
	// Buckets: 1s to 1h
	RunDuration prometheus.Histogram

	// ActiveRuns is a gauge of runs currently executing.
	ActiveRuns prometheus.Gauge

	// ItemsEvaluated counts per-item evaluations.
	// Labels: status (success|error)
	ItemsEvaluated *prometheus.CounterVec

	// ItemDuration measures per-item evaluation latency in seconds.
	ItemDuration prometheus.Histogram

	// PipelineRequestDuration measures pipeline invocation latency.
	// Labels: pipeline
	PipelineRequestDuration *prometheus.HistogramVec

	// JudgeRequests counts LLM judge invocations.
	// Labels: provider, status (success|error)
	JudgeRequests *prometheus.CounterVec

	// EmbeddingRequests counts embedding provider calls.
	// Labels: provider, status (success|error)
	EmbeddingRequests *prometheus.CounterVec

	// ErrorCounter tracks errors by component.
	// Labels: component (orchestrator|pipeline|storage), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the
// default registry. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		RunsFinished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evrag_runs_finished_total",
				Help: "Total evaluation runs reaching a terminal state, by status",
			},
			[]string{"status"},
		),

		RunDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "evrag_run_duration_seconds",
				Help:    "Wall time of evaluation runs in seconds",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
			},
		),

		ActiveRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "evrag_active_runs",
				Help: "Number of evaluation runs currently executing",
			},
		),

		ItemsEvaluated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evrag_items_evaluated_total",
				Help: "Total dataset items evaluated, by outcome",
			},
			[]string{"status"},
		),

		ItemDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "evrag_item_duration_seconds",
				Help:    "Per-item evaluation latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),

		PipelineRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "evrag_pipeline_request_duration_seconds",
				Help:    "Latency of RAG pipeline invocations in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"pipeline"},
		),

		JudgeRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evrag_judge_requests_total",
				Help: "Total LLM judge invocations, by provider and status",
			},
			[]string{"provider", "status"},
		),

		EmbeddingRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evrag_embedding_requests_total",
				Help: "Total embedding provider calls, by provider and status",
			},
			[]string{"provider", "status"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evrag_errors_total",
				Help: "Total errors by component and type",
			},
			[]string{"component", "error_type"},
		),
	}
}
