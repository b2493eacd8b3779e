package embeddings

import (
	"context"

	"github.com/evraghq/evrag/internal/observability"
)

// Instrument wraps a provider so every embedding call is counted by
// provider and outcome. A nil metrics handle returns the provider
// unwrapped.
func Instrument(p Provider, metrics *observability.Metrics) Provider {
	if metrics == nil {
		return p
	}
	return &instrumented{inner: p, metrics: metrics}
}

type instrumented struct {
	inner   Provider
	metrics *observability.Metrics
}

func (p *instrumented) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.inner.Embed(ctx, text)
	p.count(err)
	return vec, err
}

func (p *instrumented) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := p.inner.EmbedBatch(ctx, texts)
	p.count(err)
	return vecs, err
}

func (p *instrumented) count(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.EmbeddingRequests.WithLabelValues(p.inner.Name(), status).Inc()
}

func (p *instrumented) Name() string      { return p.inner.Name() }
func (p *instrumented) Dimension() int    { return p.inner.Dimension() }
func (p *instrumented) MaxBatchSize() int { return p.inner.MaxBatchSize() }
