// Package retrieval computes ranking quality metrics for retrieved
// documents against ground truth document IDs. All functions are pure and
// deterministic; duplicates in the retrieved sequence are scored as-is.
package retrieval

import (
	"fmt"
)

// DefaultKValues are the cutoffs scored when none are configured.
var DefaultKValues = []int{1, 3, 5, 10}

// ErrValidation reports malformed metric input. It indicates a caller
// bug and is never retried.
type ErrValidation struct {
	Reason string
}

func (e *ErrValidation) Error() string {
	return "retrieval metrics: " + e.Reason
}

// Metrics holds every retrieval metric for one query.
type Metrics struct {
	RecallAtK    map[int]float64
	PrecisionAtK map[int]float64
	MRR          float64
	MAP          float64
	HitRate      float64
	Coverage     float64
}

// Calculate scores a ranked retrieved sequence against the ground truth
// set for each K in kValues. An empty ground truth set yields zero scores
// rather than an error; K values must be positive.
func Calculate(retrieved []string, groundTruth []string, kValues []int) (*Metrics, error) {
	if len(kValues) == 0 {
		kValues = DefaultKValues
	}
	for _, k := range kValues {
		if k <= 0 {
			return nil, &ErrValidation{Reason: fmt.Sprintf("k must be positive, got %d", k)}
		}
	}

	gt := make(map[string]struct{}, len(groundTruth))
	for _, id := range groundTruth {
		gt[id] = struct{}{}
	}

	m := &Metrics{
		RecallAtK:    RecallAtK(retrieved, gt, kValues),
		PrecisionAtK: PrecisionAtK(retrieved, gt, kValues),
		MRR:          MRR(retrieved, gt),
		MAP:          MAP(retrieved, gt),
		Coverage:     Coverage(retrieved, gt),
	}
	m.HitRate = HitRate(retrieved, gt, maxK(kValues))
	return m, nil
}

// RecallAtK computes |top_K ∩ GT| / |GT| for each K. Defined as 0 when
// the ground truth set is empty.
func RecallAtK(retrieved []string, gt map[string]struct{}, kValues []int) map[int]float64 {
	out := make(map[int]float64, len(kValues))
	for _, k := range kValues {
		if len(gt) == 0 {
			out[k] = 0
			continue
		}
		out[k] = float64(uniqueRelevant(topK(retrieved, k), gt)) / float64(len(gt))
	}
	return out
}

// PrecisionAtK computes |top_K ∩ GT| / K for each K. When fewer than K
// documents were retrieved the divisor is the count actually retrieved.
func PrecisionAtK(retrieved []string, gt map[string]struct{}, kValues []int) map[int]float64 {
	out := make(map[int]float64, len(kValues))
	for _, k := range kValues {
		top := topK(retrieved, k)
		if len(top) == 0 {
			out[k] = 0
			continue
		}
		relevant := 0
		for _, id := range top {
			if _, ok := gt[id]; ok {
				relevant++
			}
		}
		out[k] = float64(relevant) / float64(len(top))
	}
	return out
}

// MRR returns 1/rank of the first relevant document over the full
// retrieved sequence (1-based), or 0 when no relevant document appears.
func MRR(retrieved []string, gt map[string]struct{}) float64 {
	for i, id := range retrieved {
		if _, ok := gt[id]; ok {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// MAP sums Precision@k at every rank k holding a relevant document and
// divides by |GT|. Defined as 0 when the ground truth set is empty.
func MAP(retrieved []string, gt map[string]struct{}) float64 {
	if len(gt) == 0 {
		return 0
	}
	sum := 0.0
	found := 0
	seen := make(map[string]struct{}, len(gt))
	for i, id := range retrieved {
		if _, ok := gt[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		found++
		sum += float64(found) / float64(i+1)
	}
	if found == 0 {
		return 0
	}
	return sum / float64(len(gt))
}

// HitRate returns 1 when the top K documents contain at least one
// relevant document, else 0. K is the largest configured cutoff.
func HitRate(retrieved []string, gt map[string]struct{}, k int) float64 {
	for _, id := range topK(retrieved, k) {
		if _, ok := gt[id]; ok {
			return 1
		}
	}
	return 0
}

// Coverage computes |retrieved ∩ GT| / |GT| over the entire retrieved
// sequence without truncation. Defined as 0 when the ground truth set is
// empty.
func Coverage(retrieved []string, gt map[string]struct{}) float64 {
	if len(gt) == 0 {
		return 0
	}
	return float64(uniqueRelevant(retrieved, gt)) / float64(len(gt))
}

func topK(retrieved []string, k int) []string {
	if k > len(retrieved) {
		k = len(retrieved)
	}
	return retrieved[:k]
}

func uniqueRelevant(docs []string, gt map[string]struct{}) int {
	seen := make(map[string]struct{}, len(docs))
	count := 0
	for _, id := range docs {
		if _, ok := gt[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		count++
	}
	return count
}

func maxK(kValues []int) int {
	max := kValues[0]
	for _, k := range kValues[1:] {
		if k > max {
			max = k
		}
	}
	return max
}
