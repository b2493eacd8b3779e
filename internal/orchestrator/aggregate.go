package orchestrator

import (
	"fmt"

	"github.com/evraghq/evrag/pkg/models"
)

// hallucinationRateThreshold marks an item as hallucinated for the
// aggregate rate.
const hallucinationRateThreshold = 0.5

// Aggregate computes run-level metrics from per-item results. Each
// metric is the mean over items where it was computed; items that
// errored or where a metric is nil do not contribute. A metric with no
// contributing items is absent from the map.
func Aggregate(results []*models.EvaluationResult) map[string]float64 {
	acc := newAccumulator()
	var hallucinated, scored int

	for _, r := range results {
		if r.Error != "" {
			continue
		}
		for k, v := range r.RecallAtK {
			acc.add(fmt.Sprintf("recall@%d", k), v)
		}
		for k, v := range r.PrecisionAtK {
			acc.add(fmt.Sprintf("precision@%d", k), v)
		}
		acc.addPtr("mrr", r.MRR)
		acc.addPtr("map", r.MAP)
		acc.addPtr("hit_rate", r.HitRate)
		acc.addPtr("coverage", r.Coverage)
		acc.addPtr("faithfulness", r.Faithfulness)
		acc.addPtr("answer_relevance", r.AnswerRelevance)
		acc.addPtr("context_utilization", r.ContextUtilization)
		acc.addPtr("semantic_similarity", r.SemanticSimilarity)
		acc.addPtr("rouge_l", r.RougeL)
		acc.addPtr("f1", r.F1)
		acc.addPtr("hallucination_score", r.HallucinationScore)
		acc.addPtr("citation_coverage", r.CitationCoverage)

		if r.HallucinationScore != nil {
			scored++
			if *r.HallucinationScore > hallucinationRateThreshold {
				hallucinated++
			}
		}
	}

	metrics := acc.means()
	if scored > 0 {
		metrics["hallucination_rate"] = float64(hallucinated) / float64(scored)
	}
	return metrics
}

type accumulator struct {
	sums   map[string]float64
	counts map[string]int
}

func newAccumulator() *accumulator {
	return &accumulator{
		sums:   make(map[string]float64),
		counts: make(map[string]int),
	}
}

func (a *accumulator) add(name string, v float64) {
	a.sums[name] += v
	a.counts[name]++
}

func (a *accumulator) addPtr(name string, v *float64) {
	if v == nil {
		return
	}
	a.add(name, *v)
}

func (a *accumulator) means() map[string]float64 {
	out := make(map[string]float64, len(a.sums))
	for name, sum := range a.sums {
		out[name] = sum / float64(a.counts[name])
	}
	return out
}
