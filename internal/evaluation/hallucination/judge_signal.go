package hallucination

import (
	"context"
	"fmt"
	"time"

	"github.com/evraghq/evrag/internal/evaluation/textutil"
	"github.com/evraghq/evrag/internal/judge"
)

// DefaultJudgeTimeout bounds a single judge call so a slow judge only
// delays the item that issued it.
const DefaultJudgeTimeout = 30 * time.Second

// JudgeSignal scores the fraction of answer sentences an external LLM
// judge labels unsupported. Unavailability (no provider, timeout, bad
// response) degrades the signal instead of failing the item.
type JudgeSignal struct {
	provider judge.Provider
	timeout  time.Duration
}

var _ Signal = (*JudgeSignal)(nil)

// NewJudgeSignal creates the judge signal. The provider may be nil,
// which makes the signal permanently unavailable.
func NewJudgeSignal(provider judge.Provider, timeout time.Duration) *JudgeSignal {
	if timeout <= 0 {
		timeout = DefaultJudgeTimeout
	}
	return &JudgeSignal{provider: provider, timeout: timeout}
}

// Name identifies the signal.
func (s *JudgeSignal) Name() string { return SignalLLMJudge }

// Produce asks the judge for a verdict per answer sentence and scores
// the unsupported fraction.
func (s *JudgeSignal) Produce(ctx context.Context, answer string, contexts []string) (*Finding, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("no judge provider configured")
	}

	sentences := textutil.SplitSentences(answer)
	if len(sentences) == 0 {
		return &Finding{Score: 0}, nil
	}
	if len(contexts) == 0 {
		// No context to judge against: every claim is ungrounded.
		return &Finding{Score: 1, Flagged: sentences}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	verdicts, err := s.provider.Judge(ctx, sentences, contexts)
	if err != nil {
		return nil, fmt.Errorf("judge %s: %w", s.provider.Name(), err)
	}
	if len(verdicts) != len(sentences) {
		return nil, fmt.Errorf("judge %s returned %d verdicts for %d sentences", s.provider.Name(), len(verdicts), len(sentences))
	}

	var flagged []string
	for _, v := range verdicts {
		if !v.Supported {
			flagged = append(flagged, v.Sentence)
		}
	}
	return &Finding{
		Score:   float64(len(flagged)) / float64(len(sentences)),
		Flagged: flagged,
	}, nil
}
