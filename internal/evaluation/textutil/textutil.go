// Package textutil provides sentence and token helpers shared by the
// generation metrics and hallucination signals.
package textutil

import (
	"regexp"
	"strings"
)

var sentenceBoundary = regexp.MustCompile(`[.!?]+`)

// minSentenceLen filters out fragments left over from splitting, such as
// list markers and abbreviation tails.
const minSentenceLen = 10

// SplitSentences splits text on terminal punctuation and drops fragments
// shorter than a minimum length.
func SplitSentences(text string) []string {
	parts := sentenceBoundary.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) > minSentenceLen {
			out = append(out, p)
		}
	}
	return out
}

// Tokens lowercases and whitespace-splits text into a token set.
func Tokens(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// TokenList lowercases and whitespace-splits text, preserving order and
// duplicates.
func TokenList(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// OverlapRatio returns the fraction of sentence tokens that also occur in
// the passage. Returns 0 for an empty sentence.
func OverlapRatio(sentence, passage string) float64 {
	sTokens := Tokens(sentence)
	if len(sTokens) == 0 {
		return 0
	}
	pTokens := Tokens(passage)
	overlap := 0
	for tok := range sTokens {
		if _, ok := pTokens[tok]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(sTokens))
}

// ContainsNormalized reports whether needle occurs as a substring of
// haystack, ignoring case.
func ContainsNormalized(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
