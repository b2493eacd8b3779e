package hallucination

import (
	"context"
	"math"
	"testing"
)

func TestCitationAllSupported(t *testing.T) {
	s := NewCitationSignal(0)
	f, err := s.Produce(context.Background(), "The capital of France is Paris.", []string{
		"Paris is the capital of France and its largest city.",
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if f.Score != 0 || len(f.Flagged) != 0 {
		t.Errorf("score = %v flagged = %v", f.Score, f.Flagged)
	}
}

func TestCitationUnsupportedSentence(t *testing.T) {
	s := NewCitationSignal(0)
	answer := "The capital of France is Paris. Elephants invented the telephone in 1820."
	f, err := s.Produce(context.Background(), answer, []string{
		"Paris is the capital of France and its largest city.",
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if math.Abs(f.Score-0.5) > 1e-6 {
		t.Errorf("score = %v, want 0.5", f.Score)
	}
	if len(f.Flagged) != 1 || f.Flagged[0] != "Elephants invented the telephone in 1820" {
		t.Errorf("flagged = %v", f.Flagged)
	}
}

func TestCitationNoContext(t *testing.T) {
	s := NewCitationSignal(0)
	f, err := s.Produce(context.Background(), "A claim with no backing at all.", nil)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if f.Score != 1 || len(f.Flagged) != 1 {
		t.Errorf("score = %v flagged = %v", f.Score, f.Flagged)
	}
}

func TestCitationEmptyAnswer(t *testing.T) {
	s := NewCitationSignal(0)
	f, err := s.Produce(context.Background(), "", []string{"some context"})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if f.Score != 0 {
		t.Errorf("score = %v for empty answer", f.Score)
	}
}
