// Package openai provides an LLM judge backed by OpenAI chat models.
package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/evraghq/evrag/internal/judge"
)

// Provider implements judge.Provider using the OpenAI chat completions
// API.
type Provider struct {
	client    *openai.Client
	model     string
	maxTokens int
}

var _ judge.Provider = (*Provider)(nil)

// Config contains configuration for the OpenAI judge.
type Config struct {
	APIKey    string
	BaseURL   string // Optional custom base URL
	Model     string // Defaults to gpt-4o-mini
	MaxTokens int
}

// New creates a new OpenAI judge provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:    openai.NewClientWithConfig(config),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Judge labels each answer sentence as supported or unsupported.
func (p *Provider) Judge(ctx context.Context, sentences []string, contexts []string) ([]judge.Verdict, error) {
	if len(sentences) == 0 {
		return nil, nil
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0,
		MaxTokens:   p.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: judge.BuildPrompt(sentences, contexts),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("judge completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("judge completion returned no choices")
	}

	return judge.ParseVerdicts(resp.Choices[0].Message.Content, sentences)
}
