// Package judge defines the LLM-as-judge contract used for hallucination
// detection: an external model labels each answer sentence as supported
// or unsupported given the retrieved context.
package judge

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Verdict is the judge's label for a single answer sentence.
type Verdict struct {
	// Sentence is the answer sentence that was judged.
	Sentence string `json:"sentence"`

	// Supported is true when the context backs the sentence.
	Supported bool `json:"supported"`
}

// Provider labels answer sentences against context passages. A provider
// may be unavailable (no credentials, timeout); callers treat that as a
// degraded mode, not a fatal error.
type Provider interface {
	// Judge returns one verdict per answer sentence, in order.
	Judge(ctx context.Context, sentences []string, contexts []string) ([]Verdict, error)

	// Name returns the provider name.
	Name() string
}

// Config contains common configuration for judge providers.
type Config struct {
	Provider string `yaml:"provider"` // openai or anthropic
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
}

// maxContextPassages caps how much context is packed into the prompt.
const maxContextPassages = 3

// BuildPrompt renders the judging prompt for a set of numbered answer
// sentences and context passages.
func BuildPrompt(sentences []string, contexts []string) string {
	var sb strings.Builder
	sb.WriteString("You are a strict evaluator. For each numbered STATEMENT, decide whether it is fully supported by the CONTEXT.\n\nCONTEXT:\n")
	n := len(contexts)
	if n > maxContextPassages {
		n = maxContextPassages
	}
	for _, c := range contexts[:n] {
		sb.WriteString(c)
		sb.WriteString("\n\n")
	}
	sb.WriteString("STATEMENTS:\n")
	for i, s := range sentences {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}
	sb.WriteString("\nRespond with one line per statement, in this exact format:\n")
	sb.WriteString("<number>: SUPPORTED or <number>: UNSUPPORTED\n")
	sb.WriteString("A statement that adds information absent from the context, or contradicts it, is UNSUPPORTED. Be strict.")
	return sb.String()
}

var verdictLine = regexp.MustCompile(`(?mi)^\s*(\d+)\s*[:.)\-]\s*(SUPPORTED|UNSUPPORTED)\b`)

// ParseVerdicts maps a judge response back onto the judged sentences.
// Statements the response does not mention keep the benefit of the doubt
// and are marked supported; a response with no parseable lines is an
// error so the caller can degrade the signal.
func ParseVerdicts(response string, sentences []string) ([]Verdict, error) {
	matches := verdictLine.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no verdict lines in judge response: %q", truncate(response, 120))
	}

	verdicts := make([]Verdict, len(sentences))
	for i, s := range sentences {
		verdicts[i] = Verdict{Sentence: s, Supported: true}
	}
	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > len(sentences) {
			continue
		}
		verdicts[idx-1].Supported = strings.EqualFold(m[2], "SUPPORTED")
	}
	return verdicts, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
