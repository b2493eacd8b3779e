package hallucination

import (
	"context"
	"fmt"

	"github.com/evraghq/evrag/internal/embeddings"
)

// DefaultDriftScale divides the raw cosine distance before clamping. The
// scale is configuration, not a derived constant; 1.0 treats the full
// cosine distance range as the score.
const DefaultDriftScale = 1.0

// DriftSignal measures how far the answer embedding drifts from the
// centroid of the retrieved context embeddings. It flags no individual
// spans; drift is a whole-answer property.
type DriftSignal struct {
	provider embeddings.Provider
	scale    float64
}

var _ Signal = (*DriftSignal)(nil)

// NewDriftSignal creates the drift signal. The provider may be nil,
// which makes the signal permanently unavailable.
func NewDriftSignal(provider embeddings.Provider, scale float64) *DriftSignal {
	if scale <= 0 {
		scale = DefaultDriftScale
	}
	return &DriftSignal{provider: provider, scale: scale}
}

// Name identifies the signal.
func (s *DriftSignal) Name() string { return SignalEmbeddingDrift }

// Produce scores the normalized cosine distance between the answer and
// the context centroid, clamped to [0,1].
func (s *DriftSignal) Produce(ctx context.Context, answer string, contexts []string) (*Finding, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("no embedding provider configured")
	}
	if answer == "" {
		return &Finding{Score: 0}, nil
	}
	if len(contexts) == 0 {
		return &Finding{Score: 1}, nil
	}

	answerVec, err := s.provider.Embed(ctx, answer)
	if err != nil {
		return nil, fmt.Errorf("embed answer: %w", err)
	}
	contextVecs, err := s.provider.EmbedBatch(ctx, contexts)
	if err != nil {
		return nil, fmt.Errorf("embed contexts: %w", err)
	}
	centroid := embeddings.Centroid(contextVecs)
	if centroid == nil {
		return nil, fmt.Errorf("context embeddings have inconsistent dimensions")
	}

	distance := 1.0 - embeddings.Cosine(answerVec, centroid)
	score := distance / s.scale
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return &Finding{Score: score}, nil
}
