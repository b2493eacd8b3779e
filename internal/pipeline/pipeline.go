// Package pipeline abstracts the RAG system under evaluation. The
// orchestrator invokes a pipeline once per dataset item and scores the
// response it returns.
package pipeline

import (
	"context"
	"errors"

	"github.com/evraghq/evrag/pkg/models"
)

// ErrInvocation wraps any failure to obtain a usable response from the
// pipeline. Orchestrator workers treat it as a per-item failure.
var ErrInvocation = errors.New("pipeline invocation failed")

// Response is what the pipeline produced for one query.
type Response struct {
	// RetrievedDocs is the ranked retrieval output.
	RetrievedDocs []models.RetrievedDoc `json:"retrieved_docs"`

	// Answer is the generated answer text.
	Answer string `json:"answer"`

	// LatencyMS is the pipeline's self-reported latency, when provided.
	LatencyMS float64 `json:"latency_ms,omitempty"`
}

// Pipeline is the system under evaluation.
type Pipeline interface {
	// Invoke runs the pipeline for one query, requesting topK documents.
	Invoke(ctx context.Context, query string, topK int) (*Response, error)

	// Name identifies the pipeline for logging and run metadata.
	Name() string
}
