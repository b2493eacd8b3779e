// Package main provides the CLI entry point for evrag, the RAG
// evaluation engine.
//
// evrag runs labeled query datasets through a RAG pipeline, scores
// retrieval and generation quality, detects hallucinations with a
// multi-signal fusion, and compares runs against each other.
//
// # Basic Usage
//
// Load a dataset and run an evaluation:
//
//	evrag dataset load --file golden.yaml
//	evrag run --dataset <dataset-id> --name baseline
//
// Inspect results:
//
//	evrag runs
//	evrag results <run-id>
//	evrag compare <run-id-1> <run-id-2>
//
// # Environment Variables
//
//   - EVRAG_CONFIG: Path to configuration file (default: evrag.yaml)
//   - OPENAI_API_KEY: OpenAI API key for embeddings and judge
//   - ANTHROPIC_API_KEY: Anthropic API key for the judge
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "evrag",
		Short: "RAG evaluation scoring and orchestration engine",
		Long: `evrag evaluates RAG pipelines against labeled datasets:
retrieval metrics (Recall@K, Precision@K, MRR, MAP), generation metrics
(faithfulness, relevance, ROUGE-L), and multi-signal hallucination
detection with weighted fusion.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath(), "Path to YAML configuration file")

	rootCmd.AddCommand(
		buildDatasetCmd(),
		buildRunCmd(),
		buildRunsCmd(),
		buildResultsCmd(),
		buildCompareCmd(),
		buildCancelCmd(),
		buildVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if path := os.Getenv("EVRAG_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("evrag.yaml"); err == nil {
		return "evrag.yaml"
	}
	return ""
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("evrag %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
