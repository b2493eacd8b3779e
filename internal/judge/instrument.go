package judge

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/evraghq/evrag/internal/observability"
)

// Instrument wraps a provider so every Judge call is counted and traced.
// Either argument may be nil to disable that concern; with both nil the
// provider is returned unwrapped.
func Instrument(p Provider, metrics *observability.Metrics, tracer *observability.Tracer) Provider {
	if metrics == nil && tracer == nil {
		return p
	}
	return &instrumented{inner: p, metrics: metrics, tracer: tracer}
}

type instrumented struct {
	inner   Provider
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

func (p *instrumented) Judge(ctx context.Context, sentences []string, contexts []string) ([]Verdict, error) {
	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.TraceJudgeRequest(ctx, p.inner.Name())
	}
	verdicts, err := p.inner.Judge(ctx, sentences, contexts)
	if span != nil {
		p.tracer.RecordError(span, err)
		span.End()
	}
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.JudgeRequests.WithLabelValues(p.inner.Name(), status).Inc()
	}
	return verdicts, err
}

func (p *instrumented) Name() string { return p.inner.Name() }
