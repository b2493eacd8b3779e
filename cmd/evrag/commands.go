package main

import (
	"github.com/spf13/cobra"
)

func buildDatasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Manage evaluation datasets",
	}
	cmd.AddCommand(buildDatasetLoadCmd(), buildDatasetListCmd())
	return cmd
}

func buildDatasetLoadCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a dataset file (YAML or JSON) into storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetLoad(cmd, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to dataset file")
	cobra.CheckErr(cmd.MarkFlagRequired("file"))
	return cmd
}

func buildDatasetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored datasets",
		RunE:  runDatasetList,
	}
}

func buildRunCmd() *cobra.Command {
	var (
		datasetID   string
		name        string
		description string
		endpoint    string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create and execute an evaluation run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(cmd, datasetID, name, description, endpoint)
		},
	}
	cmd.Flags().StringVarP(&datasetID, "dataset", "d", "", "Dataset ID to evaluate")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Run name")
	cmd.Flags().StringVar(&description, "description", "", "Run description")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "RAG API endpoint (overrides config; empty uses the configured pipeline)")
	cobra.CheckErr(cmd.MarkFlagRequired("dataset"))
	return cmd
}

func buildRunsCmd() *cobra.Command {
	var (
		datasetID string
		limit     int
		offset    int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List evaluation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListRuns(cmd, datasetID, limit, offset)
		},
	}
	cmd.Flags().StringVarP(&datasetID, "dataset", "d", "", "Only list runs for this dataset")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Runs to skip")
	return cmd
}

func buildResultsCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "results <run-id>",
		Short: "Show a run's aggregate metrics and per-item results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShowResults(cmd, args[0], jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit raw JSON")
	return cmd
}

func buildCompareCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "compare <run-id-1> <run-id-2>",
		Short: "Compare two completed runs (run 1 is the baseline)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, args[0], args[1], jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit raw JSON")
	return cmd
}

func buildCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a pending run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(cmd, args[0])
		},
	}
}
