// Package config loads the evaluation engine configuration from YAML
// with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for evrag.
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Evaluation    EvaluationConfig    `yaml:"evaluation"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is one of "memory", "sqlite", "postgres".
	Driver string `yaml:"driver"`

	// DSN is the SQLite file path or Postgres connection string.
	DSN string `yaml:"dsn"`
}

// PipelineConfig describes the RAG system under evaluation.
type PipelineConfig struct {
	// Type is "api" or "mock".
	Type string `yaml:"type"`

	// Endpoint is the RAG API URL (required for "api").
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds a single pipeline invocation.
	Timeout time.Duration `yaml:"timeout"`

	// Headers are extra request headers, e.g. authorization.
	Headers map[string]string `yaml:"headers"`
}

// EvaluationConfig tunes scoring and orchestration.
type EvaluationConfig struct {
	// KValues are the retrieval metric cutoffs.
	KValues []int `yaml:"k_values"`

	// TopK is the per-query document count requested from the pipeline.
	TopK int `yaml:"top_k"`

	// Workers bounds concurrent item evaluation.
	Workers int `yaml:"workers"`

	// MaxConsecutiveFailures aborts a run after this many item failures
	// in a row.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`

	// SimilarityThreshold is the sentence-entailment cutoff.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// CitationThreshold is the token-overlap cutoff for citation
	// support.
	CitationThreshold float64 `yaml:"citation_threshold"`

	// JudgeTimeout bounds a single LLM judge call.
	JudgeTimeout time.Duration `yaml:"judge_timeout"`

	// Weights are the hallucination signal fusion weights.
	Weights WeightsConfig `yaml:"weights"`
}

// WeightsConfig holds the hallucination fusion weights.
type WeightsConfig struct {
	Judge    float64 `yaml:"judge"`
	Citation float64 `yaml:"citation"`
	Drift    float64 `yaml:"drift"`
}

// ProvidersConfig holds LLM and embedding provider credentials.
type ProvidersConfig struct {
	// Judge is "openai", "anthropic", or empty to disable the LLM
	// judge signal.
	Judge string `yaml:"judge"`

	// Embeddings is "openai" or empty to disable embedding-backed
	// metrics.
	Embeddings string `yaml:"embeddings"`

	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
}

// ProviderConfig holds one provider's credentials and model selection.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus listen address (e.g. ":9090").
	// Empty disables the metrics endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// OTLPEndpoint is the trace collector endpoint. Empty disables
	// tracing.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// SamplingRate is the trace sampling fraction.
	SamplingRate float64 `yaml:"sampling_rate"`

	// Insecure disables TLS for the OTLP connection.
	Insecure bool `yaml:"insecure"`
}

// Load reads and parses the configuration file, expanding ${VAR}
// references from the environment. A missing path yields defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.Pipeline.Type == "" {
		cfg.Pipeline.Type = "mock"
	}
	if cfg.Pipeline.Timeout == 0 {
		cfg.Pipeline.Timeout = 60 * time.Second
	}
	if len(cfg.Evaluation.KValues) == 0 {
		cfg.Evaluation.KValues = []int{1, 3, 5, 10}
	}
	if cfg.Evaluation.TopK == 0 {
		cfg.Evaluation.TopK = 10
	}
	if cfg.Evaluation.Workers == 0 {
		cfg.Evaluation.Workers = 4
	}
	if cfg.Evaluation.MaxConsecutiveFailures == 0 {
		cfg.Evaluation.MaxConsecutiveFailures = 5
	}
	if cfg.Evaluation.SimilarityThreshold == 0 {
		cfg.Evaluation.SimilarityThreshold = 0.7
	}
	if cfg.Evaluation.CitationThreshold == 0 {
		cfg.Evaluation.CitationThreshold = 0.5
	}
	if cfg.Evaluation.JudgeTimeout == 0 {
		cfg.Evaluation.JudgeTimeout = 30 * time.Second
	}
	if cfg.Evaluation.Weights == (WeightsConfig{}) {
		cfg.Evaluation.Weights = WeightsConfig{Judge: 0.40, Citation: 0.35, Drift: 0.25}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Observability.SamplingRate == 0 {
		cfg.Observability.SamplingRate = 1.0
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage driver: %q", cfg.Storage.Driver)
	}
	if cfg.Pipeline.Type == "api" && cfg.Pipeline.Endpoint == "" {
		return fmt.Errorf("pipeline endpoint required for api type")
	}
	for _, k := range cfg.Evaluation.KValues {
		if k <= 0 {
			return fmt.Errorf("k values must be positive, got %d", k)
		}
	}
	w := cfg.Evaluation.Weights
	if w.Judge < 0 || w.Citation < 0 || w.Drift < 0 {
		return fmt.Errorf("fusion weights must be non-negative")
	}
	if w.Judge+w.Citation+w.Drift == 0 {
		return fmt.Errorf("at least one fusion weight must be positive")
	}
	return nil
}
