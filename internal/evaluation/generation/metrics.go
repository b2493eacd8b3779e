// Package generation computes answer quality metrics for a generated
// answer against the retrieved context and an optional ground truth
// answer. Embedding-backed metrics degrade to nil when the similarity
// provider is unavailable; lexical metrics (ROUGE-L, F1) never require a
// provider.
package generation

import (
	"context"
	"log/slog"

	"github.com/evraghq/evrag/internal/embeddings"
	"github.com/evraghq/evrag/internal/evaluation/textutil"
)

// DefaultSimilarityThreshold is the cutoff above which a sentence pair is
// considered semantically entailed.
const DefaultSimilarityThreshold = 0.7

// Calculator computes generation metrics using a similarity provider.
type Calculator struct {
	provider  embeddings.Provider
	threshold float64
	logger    *slog.Logger
}

// Options configures the calculator.
type Options struct {
	// SimilarityThreshold is the sentence-entailment cutoff for
	// faithfulness and context utilization. Defaults to 0.7.
	SimilarityThreshold float64

	// Logger for degraded-mode events.
	Logger *slog.Logger
}

// Input carries everything needed to score one item.
type Input struct {
	Query             string
	GeneratedAnswer   string
	ContextTexts      []string
	GroundTruthAnswer string
}

// Metrics holds the generation metric values. Nil means the metric could
// not be computed for this item (missing input or unavailable provider),
// which downstream aggregation must distinguish from a genuine 0.
type Metrics struct {
	SemanticSimilarity *float64
	AnswerRelevance    *float64
	ContextUtilization *float64
	Faithfulness       *float64
	RougeL             *float64
	F1                 *float64
}

// NewCalculator creates a calculator. The provider may be nil, in which
// case every embedding-backed metric is nil.
func NewCalculator(provider embeddings.Provider, opts *Options) *Calculator {
	c := &Calculator{
		provider:  provider,
		threshold: DefaultSimilarityThreshold,
		logger:    slog.Default().With("component", "generation-metrics"),
	}
	if opts != nil {
		if opts.SimilarityThreshold > 0 {
			c.threshold = opts.SimilarityThreshold
		}
		if opts.Logger != nil {
			c.logger = opts.Logger
		}
	}
	return c
}

// Calculate scores a single item. Lexical metrics are always attempted;
// embedding metrics share one batched provider call per text group.
func (c *Calculator) Calculate(ctx context.Context, in Input) *Metrics {
	m := &Metrics{
		RougeL: RougeL(in.GeneratedAnswer, in.GroundTruthAnswer),
		F1:     TokenF1(in.GeneratedAnswer, in.GroundTruthAnswer),
	}
	if c.provider == nil || in.GeneratedAnswer == "" {
		return m
	}

	answerVec, err := c.provider.Embed(ctx, in.GeneratedAnswer)
	if err != nil {
		c.logger.Warn("embedding provider unavailable, degrading generation metrics", "error", err)
		return m
	}

	if in.GroundTruthAnswer != "" {
		if gtVec, err := c.provider.Embed(ctx, in.GroundTruthAnswer); err == nil {
			sim := embeddings.Cosine(answerVec, gtVec)
			m.SemanticSimilarity = &sim
		} else {
			c.logger.Warn("semantic similarity skipped", "error", err)
		}
	}

	if in.Query != "" {
		if queryVec, err := c.provider.Embed(ctx, in.Query); err == nil {
			rel := embeddings.Cosine(answerVec, queryVec)
			m.AnswerRelevance = &rel
		} else {
			c.logger.Warn("answer relevance skipped", "error", err)
		}
	}

	c.contextMetrics(ctx, in, m)
	return m
}

// contextMetrics computes faithfulness and context utilization from
// sentence-level similarity between the answer and the context.
func (c *Calculator) contextMetrics(ctx context.Context, in Input, m *Metrics) {
	if len(in.ContextTexts) == 0 {
		// Documented edge case: empty context scores 0, not nil.
		m.ContextUtilization = zero()
		m.Faithfulness = zero()
		return
	}

	answerSentences := textutil.SplitSentences(in.GeneratedAnswer)
	var contextSentences []string
	for _, text := range in.ContextTexts {
		contextSentences = append(contextSentences, textutil.SplitSentences(text)...)
	}
	if len(answerSentences) == 0 || len(contextSentences) == 0 {
		m.ContextUtilization = zero()
		m.Faithfulness = zero()
		return
	}

	answerVecs, err := c.provider.EmbedBatch(ctx, answerSentences)
	if err != nil {
		c.logger.Warn("context metrics skipped", "error", err)
		return
	}
	contextVecs, err := c.provider.EmbedBatch(ctx, contextSentences)
	if err != nil {
		c.logger.Warn("context metrics skipped", "error", err)
		return
	}

	// Faithfulness: answer sentences entailed by some context sentence.
	supported := 0
	for _, av := range answerVecs {
		if maxSimilarity(av, contextVecs) >= c.threshold {
			supported++
		}
	}
	faith := float64(supported) / float64(len(answerVecs))
	m.Faithfulness = &faith

	// Context utilization: context sentences reflected by some answer
	// sentence.
	utilized := 0
	for _, cv := range contextVecs {
		if maxSimilarity(cv, answerVecs) >= c.threshold {
			utilized++
		}
	}
	util := float64(utilized) / float64(len(contextVecs))
	m.ContextUtilization = &util
}

func maxSimilarity(vec []float32, candidates [][]float32) float64 {
	best := -1.0
	for _, c := range candidates {
		if sim := embeddings.Cosine(vec, c); sim > best {
			best = sim
		}
	}
	return best
}

func zero() *float64 {
	z := 0.0
	return &z
}
