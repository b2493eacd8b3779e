package pipeline

import (
	"context"
	"fmt"

	"github.com/evraghq/evrag/pkg/models"
)

// MockPipeline returns deterministic canned responses. Useful for
// exercising the evaluation loop without a live RAG system.
type MockPipeline struct{}

// NewMockPipeline creates a mock pipeline.
func NewMockPipeline() *MockPipeline {
	return &MockPipeline{}
}

// Invoke returns a fixed retrieval set and a templated answer.
func (p *MockPipeline) Invoke(ctx context.Context, query string, topK int) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvocation, err)
	}
	docs := []models.RetrievedDoc{
		{ID: "doc1", Text: "This is a sample document about the query topic.", Score: 0.92},
		{ID: "doc2", Text: "Another relevant document with more information.", Score: 0.81},
		{ID: "doc3", Text: "A third document providing additional context.", Score: 0.74},
	}
	if topK > 0 && topK < len(docs) {
		docs = docs[:topK]
	}
	return &Response{
		RetrievedDocs: docs,
		Answer:        fmt.Sprintf("Based on the retrieved documents, here is an answer to: %s. The information suggests various relevant points.", query),
	}, nil
}

// Name returns the pipeline identifier.
func (p *MockPipeline) Name() string {
	return "mock"
}

// Factory creates a pipeline from a type and endpoint. Supported types
// are "api" and "mock".
func Factory(pipelineType, endpoint string, opts ...HTTPOption) (Pipeline, error) {
	switch pipelineType {
	case "mock":
		return NewMockPipeline(), nil
	case "api":
		if endpoint == "" {
			return nil, fmt.Errorf("endpoint required for api pipeline")
		}
		return NewHTTPPipeline(endpoint, opts...), nil
	default:
		return nil, fmt.Errorf("unknown pipeline type: %q", pipelineType)
	}
}
