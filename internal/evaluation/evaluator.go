// Package evaluation scores a single RAG pipeline response against a
// labeled dataset item, combining retrieval metrics, generation metrics,
// and the hallucination detector into one result.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/evraghq/evrag/internal/evaluation/generation"
	"github.com/evraghq/evrag/internal/evaluation/hallucination"
	"github.com/evraghq/evrag/internal/evaluation/retrieval"
	"github.com/evraghq/evrag/pkg/models"
)

// Evaluator scores individual items. It is stateless and safe for
// concurrent use across orchestrator workers.
type Evaluator struct {
	kValues    []int
	generation *generation.Calculator
	detector   *hallucination.Detector
	logger     *slog.Logger
}

// Options configures the evaluator.
type Options struct {
	// KValues are the retrieval metric cutoffs. Defaults to 1,3,5,10.
	KValues []int

	// Logger for evaluation events.
	Logger *slog.Logger
}

// New creates an evaluator from the generation calculator and
// hallucination detector.
func New(gen *generation.Calculator, detector *hallucination.Detector, opts *Options) *Evaluator {
	e := &Evaluator{
		kValues:    retrieval.DefaultKValues,
		generation: gen,
		detector:   detector,
		logger:     slog.Default().With("component", "evaluator"),
	}
	if opts != nil {
		if len(opts.KValues) > 0 {
			e.kValues = opts.KValues
		}
		if opts.Logger != nil {
			e.logger = opts.Logger
		}
	}
	return e
}

// Evaluate scores one pipeline response against its dataset item and
// fills the metric fields of a result. Identity fields (IDs, timestamps)
// are the caller's concern.
func (e *Evaluator) Evaluate(ctx context.Context, item *models.DatasetItem, docs []models.RetrievedDoc, answer string) (*models.EvaluationResult, error) {
	result := &models.EvaluationResult{
		DatasetItemID:   item.ID,
		RetrievedDocs:   docs,
		GeneratedAnswer: answer,
	}

	docIDs := make([]string, len(docs))
	contexts := make([]string, 0, len(docs))
	for i, d := range docs {
		docIDs[i] = d.ID
		if d.Text != "" {
			contexts = append(contexts, d.Text)
		}
	}

	rm, err := retrieval.Calculate(docIDs, item.GroundTruthDocs, e.kValues)
	if err != nil {
		return nil, fmt.Errorf("retrieval metrics: %w", err)
	}
	result.RecallAtK = rm.RecallAtK
	result.PrecisionAtK = rm.PrecisionAtK
	result.MRR = models.Float(rm.MRR)
	result.MAP = models.Float(rm.MAP)
	result.HitRate = models.Float(rm.HitRate)
	result.Coverage = models.Float(rm.Coverage)

	gm := e.generation.Calculate(ctx, generation.Input{
		Query:             item.Query,
		GeneratedAnswer:   answer,
		ContextTexts:      contexts,
		GroundTruthAnswer: item.GroundTruthAnswer,
	})
	result.SemanticSimilarity = gm.SemanticSimilarity
	result.AnswerRelevance = gm.AnswerRelevance
	result.ContextUtilization = gm.ContextUtilization
	result.Faithfulness = gm.Faithfulness
	result.RougeL = gm.RougeL
	result.F1 = gm.F1

	assessment := e.detector.Detect(ctx, answer, contexts)
	result.HallucinationScore = assessment.Score
	result.HallucinationSeverity = assessment.Severity
	result.HallucinatedSpans = assessment.Spans
	result.CitationCoverage = assessment.CitationCoverage
	result.SignalBreakdown = assessment.Breakdown

	return result, nil
}
