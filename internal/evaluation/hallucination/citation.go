package hallucination

import (
	"context"

	"github.com/evraghq/evrag/internal/evaluation/textutil"
)

// DefaultCitationThreshold is the minimum token-overlap ratio for an
// answer sentence to count as cited by a context passage.
const DefaultCitationThreshold = 0.5

// CitationSignal flags answer sentences that no context passage supports
// lexically. It has no external dependency and is always available.
type CitationSignal struct {
	threshold float64
}

var _ Signal = (*CitationSignal)(nil)

// NewCitationSignal creates a citation checker. A non-positive threshold
// falls back to the default.
func NewCitationSignal(threshold float64) *CitationSignal {
	if threshold <= 0 {
		threshold = DefaultCitationThreshold
	}
	return &CitationSignal{threshold: threshold}
}

// Name identifies the signal.
func (s *CitationSignal) Name() string { return SignalCitationCheck }

// Produce scores the fraction of answer sentences without a citation.
func (s *CitationSignal) Produce(_ context.Context, answer string, contexts []string) (*Finding, error) {
	sentences := textutil.SplitSentences(answer)
	if len(sentences) == 0 {
		return &Finding{Score: 0}, nil
	}
	if len(contexts) == 0 {
		// Nothing can be cited; every sentence is unsupported.
		return &Finding{Score: 1, Flagged: sentences}, nil
	}

	var flagged []string
	for _, sentence := range sentences {
		if !s.cited(sentence, contexts) {
			flagged = append(flagged, sentence)
		}
	}
	return &Finding{
		Score:   float64(len(flagged)) / float64(len(sentences)),
		Flagged: flagged,
	}, nil
}

func (s *CitationSignal) cited(sentence string, contexts []string) bool {
	for _, passage := range contexts {
		if textutil.ContainsNormalized(passage, sentence) {
			return true
		}
		if textutil.OverlapRatio(sentence, passage) >= s.threshold {
			return true
		}
	}
	return false
}
