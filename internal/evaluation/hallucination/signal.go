// Package hallucination fuses independent hallucination signals into a
// single score, a severity class, and the list of unsupported answer
// spans. Signals degrade independently: an unavailable signal is skipped
// and its weight is redistributed across the signals that ran.
package hallucination

import (
	"context"
)

// Finding is the outcome of one signal. Score is normalized to [0,1]
// where higher means more hallucinated.
type Finding struct {
	// Score is the signal's hallucination score.
	Score float64

	// Flagged lists the answer sentences the signal judged unsupported,
	// in original answer order.
	Flagged []string
}

// Signal produces one hallucination measurement. Returning an error
// marks the signal unavailable for the item; the detector redistributes
// its weight rather than failing the evaluation.
type Signal interface {
	// Name identifies the signal in breakdowns and logs.
	Name() string

	// Produce scores the answer against the retrieved context passages.
	Produce(ctx context.Context, answer string, contexts []string) (*Finding, error)
}

// Signal names used in result breakdowns.
const (
	SignalLLMJudge       = "llm_judge"
	SignalCitationCheck  = "citation_check"
	SignalEmbeddingDrift = "embedding_drift"
)
