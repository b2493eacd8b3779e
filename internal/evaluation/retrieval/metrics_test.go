package retrieval

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestCalculateRankedHit(t *testing.T) {
	m, err := Calculate([]string{"d1", "d3", "d5"}, []string{"d1", "d5"}, []int{3})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !almostEqual(m.RecallAtK[3], 1.0) {
		t.Errorf("recall@3 = %v", m.RecallAtK[3])
	}
	if !almostEqual(m.PrecisionAtK[3], 2.0/3.0) {
		t.Errorf("precision@3 = %v", m.PrecisionAtK[3])
	}
	if !almostEqual(m.MRR, 1.0) {
		t.Errorf("mrr = %v", m.MRR)
	}
	// (1/1 + 2/3) / 2
	if !almostEqual(m.MAP, 0.833333) {
		t.Errorf("map = %v", m.MAP)
	}
	if !almostEqual(m.HitRate, 1.0) {
		t.Errorf("hit rate = %v", m.HitRate)
	}
	if !almostEqual(m.Coverage, 1.0) {
		t.Errorf("coverage = %v", m.Coverage)
	}
}

func TestCalculateTotalMiss(t *testing.T) {
	m, err := Calculate([]string{"d2", "d4"}, []string{"d1"}, []int{2})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if m.RecallAtK[2] != 0 {
		t.Errorf("recall@2 = %v", m.RecallAtK[2])
	}
	if m.MRR != 0 {
		t.Errorf("mrr = %v", m.MRR)
	}
	if m.HitRate != 0 {
		t.Errorf("hit rate = %v", m.HitRate)
	}
}

func TestEmptyGroundTruth(t *testing.T) {
	m, err := Calculate([]string{"d1", "d2"}, nil, []int{1, 3})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	for k, v := range m.RecallAtK {
		if v != 0 {
			t.Errorf("recall@%d = %v with empty ground truth", k, v)
		}
	}
	if m.MAP != 0 || m.Coverage != 0 || m.HitRate != 0 {
		t.Errorf("map=%v coverage=%v hit=%v with empty ground truth", m.MAP, m.Coverage, m.HitRate)
	}
}

func TestPrecisionShortRetrieval(t *testing.T) {
	// Only 2 docs retrieved; precision@5 divides by 2, not 5.
	m, err := Calculate([]string{"d1", "d2"}, []string{"d1"}, []int{5})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !almostEqual(m.PrecisionAtK[5], 0.5) {
		t.Errorf("precision@5 = %v, want 0.5", m.PrecisionAtK[5])
	}
	// Recall is still scored for the configured K.
	if got, ok := m.RecallAtK[5]; !ok || !almostEqual(got, 1.0) {
		t.Errorf("recall@5 = %v (present=%v), want 1.0", got, ok)
	}
}

func TestHitRateMatchesMRR(t *testing.T) {
	sets := [][2][]string{
		{{"d1", "d2"}, {"d2"}},
		{{"d1", "d2"}, {"d9"}},
		{{"d5"}, {"d5"}},
		{{}, {"d1"}},
	}
	for _, s := range sets {
		m, err := Calculate(s[0], s[1], []int{10})
		if err != nil {
			t.Fatalf("Calculate: %v", err)
		}
		if (m.HitRate == 1) != (m.MRR > 0) {
			t.Errorf("retrieved=%v gt=%v: hit=%v mrr=%v", s[0], s[1], m.HitRate, m.MRR)
		}
	}
}

func TestDuplicatesDoNotInflate(t *testing.T) {
	m, err := Calculate([]string{"d1", "d1", "d1"}, []string{"d1", "d2"}, []int{3})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if m.RecallAtK[3] > 0.5+1e-9 {
		t.Errorf("recall@3 = %v, duplicates counted twice", m.RecallAtK[3])
	}
	if m.MAP > 1 {
		t.Errorf("map = %v exceeds 1", m.MAP)
	}
	// Precision scores the sequence as-is: all three slots hold a
	// relevant ID.
	if !almostEqual(m.PrecisionAtK[3], 1.0) {
		t.Errorf("precision@3 = %v", m.PrecisionAtK[3])
	}
}

func TestScoreBounds(t *testing.T) {
	retrieved := []string{"a", "b", "c", "a", "d", "e"}
	gt := []string{"b", "d", "z"}
	m, err := Calculate(retrieved, gt, []int{1, 3, 5, 10})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	check := func(name string, v float64) {
		if v < 0 || v > 1 {
			t.Errorf("%s = %v out of [0,1]", name, v)
		}
	}
	for k, v := range m.RecallAtK {
		check("recall", v)
		_ = k
	}
	for _, v := range m.PrecisionAtK {
		check("precision", v)
	}
	check("mrr", m.MRR)
	check("map", m.MAP)
	check("coverage", m.Coverage)
	check("hit_rate", m.HitRate)
}

func TestInvalidK(t *testing.T) {
	if _, err := Calculate([]string{"d1"}, []string{"d1"}, []int{0}); err == nil {
		t.Fatal("expected validation error for k=0")
	}
	_, err := Calculate([]string{"d1"}, []string{"d1"}, []int{-2})
	if err == nil {
		t.Fatal("expected validation error for negative k")
	}
	var verr *ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T", err)
	}
}
