package generation

import (
	"github.com/evraghq/evrag/internal/evaluation/textutil"
)

// RougeL computes the ROUGE-L F-measure between the generated and ground
// truth answers: the harmonic mean of LCS precision and recall over
// lowercased tokens. Nil when either text is empty.
func RougeL(generated, groundTruth string) *float64 {
	if generated == "" || groundTruth == "" {
		return nil
	}
	genTokens := textutil.TokenList(generated)
	gtTokens := textutil.TokenList(groundTruth)
	if len(genTokens) == 0 || len(gtTokens) == 0 {
		return zero()
	}

	lcs := lcsLength(genTokens, gtTokens)
	precision := float64(lcs) / float64(len(genTokens))
	recall := float64(lcs) / float64(len(gtTokens))
	if precision+recall == 0 {
		return zero()
	}
	f := 2 * precision * recall / (precision + recall)
	return &f
}

// TokenF1 computes token-level set-overlap F1 between the generated and
// ground truth answers. Nil when either text is empty.
func TokenF1(generated, groundTruth string) *float64 {
	if generated == "" || groundTruth == "" {
		return nil
	}
	genTokens := textutil.Tokens(generated)
	gtTokens := textutil.Tokens(groundTruth)
	if len(genTokens) == 0 || len(gtTokens) == 0 {
		return zero()
	}

	tp := 0
	for tok := range genTokens {
		if _, ok := gtTokens[tok]; ok {
			tp++
		}
	}
	precision := float64(tp) / float64(len(genTokens))
	recall := float64(tp) / float64(len(gtTokens))
	if precision+recall == 0 {
		return zero()
	}
	f := 2 * precision * recall / (precision + recall)
	return &f
}

// lcsLength computes the longest common subsequence length with a
// two-row rolling table.
func lcsLength(a, b []string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
