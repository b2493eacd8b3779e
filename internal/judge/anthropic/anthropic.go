// Package anthropic provides an LLM judge backed by Anthropic's Claude
// models.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/evraghq/evrag/internal/judge"
)

// Provider implements judge.Provider using the Anthropic Messages API.
type Provider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

var _ judge.Provider = (*Provider)(nil)

// Config contains configuration for the Anthropic judge.
type Config struct {
	APIKey    string
	BaseURL   string // Optional custom base URL
	Model     string // Defaults to claude-3-5-haiku-latest
	MaxTokens int64
}

// New creates a new Anthropic judge provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client:    anthropic.NewClient(options...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "anthropic"
}

// Judge labels each answer sentence as supported or unsupported.
func (p *Provider) Judge(ctx context.Context, sentences []string, contexts []string) ([]judge.Verdict, error) {
	if len(sentences) == 0 {
		return nil, nil
	}

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(judge.BuildPrompt(sentences, contexts))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("judge completion: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return judge.ParseVerdicts(sb.String(), sentences)
}
