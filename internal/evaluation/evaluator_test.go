package evaluation

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/evraghq/evrag/internal/evaluation/generation"
	"github.com/evraghq/evrag/internal/evaluation/hallucination"
	"github.com/evraghq/evrag/pkg/models"
)

func testEvaluator() *Evaluator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gen := generation.NewCalculator(nil, &generation.Options{Logger: logger})
	det := hallucination.NewDetector(logger)
	det.Register(hallucination.NewCitationSignal(0), hallucination.DefaultCitationWeight)
	return New(gen, det, &Options{KValues: []int{1, 3}, Logger: logger})
}

func TestEvaluateFillsMetricFields(t *testing.T) {
	e := testEvaluator()
	item := &models.DatasetItem{
		ID:                "item-1",
		Query:             "What is the capital of France?",
		GroundTruthDocs:   []string{"d1", "d3"},
		GroundTruthAnswer: "The capital of France is Paris.",
	}
	docs := []models.RetrievedDoc{
		{ID: "d1", Text: "The capital of France is Paris. It is a large city."},
		{ID: "d2", Text: "France is a country in western Europe."},
	}

	result, err := e.Evaluate(context.Background(), item, docs, "The capital of France is Paris.")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.DatasetItemID != "item-1" {
		t.Errorf("item id = %s", result.DatasetItemID)
	}
	if result.MRR == nil || math.Abs(*result.MRR-1.0) > 1e-6 {
		t.Errorf("mrr = %v, want 1.0 (d1 at rank 1)", result.MRR)
	}
	if math.Abs(result.RecallAtK[3]-0.5) > 1e-6 {
		t.Errorf("recall@3 = %v, want 0.5 (d3 never retrieved)", result.RecallAtK[3])
	}
	if result.Coverage == nil || math.Abs(*result.Coverage-0.5) > 1e-6 {
		t.Errorf("coverage = %v, want 0.5", result.Coverage)
	}
	// No embedding provider: lexical metrics only.
	if result.RougeL == nil || *result.RougeL <= 0 {
		t.Errorf("rouge_l = %v", result.RougeL)
	}
	if result.SemanticSimilarity != nil {
		t.Errorf("semantic similarity = %v, want nil without provider", *result.SemanticSimilarity)
	}
	// The citation signal always runs, so the fused score is present.
	if result.HallucinationScore == nil {
		t.Fatal("hallucination score is nil with citation signal registered")
	}
	if *result.HallucinationScore != 0 {
		t.Errorf("hallucination score = %v, answer is quoted from context", *result.HallucinationScore)
	}
	if result.HallucinationSeverity != models.SeverityLow {
		t.Errorf("severity = %s", result.HallucinationSeverity)
	}
	if result.CitationCoverage == nil || math.Abs(*result.CitationCoverage-1.0) > 1e-6 {
		t.Errorf("citation coverage = %v, want 1.0", result.CitationCoverage)
	}
}

func TestEvaluateInvalidKValues(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(
		generation.NewCalculator(nil, &generation.Options{Logger: logger}),
		hallucination.NewDetector(logger),
		&Options{KValues: []int{-1}, Logger: logger},
	)
	_, err := e.Evaluate(context.Background(), &models.DatasetItem{ID: "i"}, nil, "")
	if err == nil {
		t.Fatal("expected validation error for negative k")
	}
}
