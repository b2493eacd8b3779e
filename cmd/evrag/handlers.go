package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/evraghq/evrag/internal/compare"
	"github.com/evraghq/evrag/internal/config"
	"github.com/evraghq/evrag/internal/dataset"
	"github.com/evraghq/evrag/internal/embeddings"
	openaiemb "github.com/evraghq/evrag/internal/embeddings/openai"
	"github.com/evraghq/evrag/internal/evaluation"
	"github.com/evraghq/evrag/internal/evaluation/generation"
	"github.com/evraghq/evrag/internal/evaluation/hallucination"
	"github.com/evraghq/evrag/internal/judge"
	anthropicjudge "github.com/evraghq/evrag/internal/judge/anthropic"
	openaijudge "github.com/evraghq/evrag/internal/judge/openai"
	"github.com/evraghq/evrag/internal/observability"
	"github.com/evraghq/evrag/internal/orchestrator"
	"github.com/evraghq/evrag/internal/pipeline"
	"github.com/evraghq/evrag/internal/storage"
	"github.com/evraghq/evrag/pkg/models"
)

// app wires configuration, storage, and the evaluation services for one
// CLI invocation.
type app struct {
	cfg    *config.Config
	logger *observability.Logger
	store  storage.Store
	orch   *orchestrator.Orchestrator
	comp   *compare.Engine

	shutdownTracer func(context.Context) error
}

func newApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})

	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "evrag",
		ServiceVersion: version,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		SamplingRate:   cfg.Observability.SamplingRate,
		EnableInsecure: cfg.Observability.Insecure,
	})

	var metrics *observability.Metrics
	if cfg.Observability.MetricsAddr != "" {
		metrics = observability.NewMetrics()
		go serveMetrics(cfg.Observability.MetricsAddr)
	}

	evaluator := buildEvaluator(cfg, logger, metrics, tracer)

	orch := orchestrator.New(store, evaluator, orchestrator.Config{
		Workers:                cfg.Evaluation.Workers,
		MaxConsecutiveFailures: cfg.Evaluation.MaxConsecutiveFailures,
		TopK:                   cfg.Evaluation.TopK,
		Logger:                 logger.Slog().With("component", "orchestrator"),
		Metrics:                metrics,
		Tracer:                 tracer,
	}, orchestrator.WithPipelineFactory(pipelineFactory(cfg)))

	return &app{
		cfg:            cfg,
		logger:         logger,
		store:          store,
		orch:           orch,
		comp:           compare.New(store, logger.Slog().With("component", "compare")),
		shutdownTracer: shutdownTracer,
	}, nil
}

func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.shutdownTracer != nil {
		_ = a.shutdownTracer(ctx)
	}
	_ = a.store.Close()
}

// buildEvaluator assembles the per-item evaluator from the configured
// providers. Missing providers degrade: embedding metrics go nil, the
// judge signal drops out of the fusion.
func buildEvaluator(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *evaluation.Evaluator {
	slogger := logger.Slog()

	var embProvider embeddings.Provider
	if cfg.Providers.Embeddings == "openai" && cfg.Providers.OpenAI.APIKey != "" {
		p, err := openaiemb.New(openaiemb.Config{
			APIKey:  cfg.Providers.OpenAI.APIKey,
			BaseURL: cfg.Providers.OpenAI.BaseURL,
		})
		if err == nil {
			embProvider = p
		} else {
			slogger.Warn("embedding provider disabled", "error", err)
		}
	}

	var judgeProvider judge.Provider
	switch cfg.Providers.Judge {
	case "openai":
		if p, err := openaijudge.New(openaijudge.Config{
			APIKey:  cfg.Providers.OpenAI.APIKey,
			BaseURL: cfg.Providers.OpenAI.BaseURL,
			Model:   cfg.Providers.OpenAI.Model,
		}); err == nil {
			judgeProvider = p
		} else {
			slogger.Warn("judge provider disabled", "error", err)
		}
	case "anthropic":
		if p, err := anthropicjudge.New(anthropicjudge.Config{
			APIKey:  cfg.Providers.Anthropic.APIKey,
			BaseURL: cfg.Providers.Anthropic.BaseURL,
			Model:   cfg.Providers.Anthropic.Model,
		}); err == nil {
			judgeProvider = p
		} else {
			slogger.Warn("judge provider disabled", "error", err)
		}
	}

	if embProvider != nil {
		embProvider = embeddings.Instrument(embProvider, metrics)
	}
	if judgeProvider != nil {
		judgeProvider = judge.Instrument(judgeProvider, metrics, tracer)
	}

	gen := generation.NewCalculator(embProvider, &generation.Options{
		SimilarityThreshold: cfg.Evaluation.SimilarityThreshold,
		Logger:              slogger.With("component", "generation-metrics"),
	})

	detector := hallucination.NewDetector(slogger.With("component", "hallucination-detector"))
	w := cfg.Evaluation.Weights
	if judgeProvider != nil {
		detector.Register(
			hallucination.NewJudgeSignal(judgeProvider, cfg.Evaluation.JudgeTimeout),
			w.Judge)
	}
	detector.Register(
		hallucination.NewCitationSignal(cfg.Evaluation.CitationThreshold),
		w.Citation)
	if embProvider != nil {
		detector.Register(
			hallucination.NewDriftSignal(embProvider, hallucination.DefaultDriftScale),
			w.Drift)
	}

	return evaluation.New(gen, detector, &evaluation.Options{
		KValues: cfg.Evaluation.KValues,
		Logger:  slogger.With("component", "evaluator"),
	})
}

// pipelineFactory builds the pipeline for a run. A run-level endpoint
// wins over the configured pipeline.
func pipelineFactory(cfg *config.Config) orchestrator.PipelineFactory {
	return func(run *models.EvaluationRun) (pipeline.Pipeline, error) {
		endpoint := run.PipelineEndpoint
		ptype := cfg.Pipeline.Type
		if endpoint != "" {
			ptype = "api"
		} else {
			endpoint = cfg.Pipeline.Endpoint
		}
		return pipeline.Factory(ptype, endpoint,
			pipeline.WithTimeout(cfg.Pipeline.Timeout),
			pipeline.WithHeaders(cfg.Pipeline.Headers))
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	_ = http.ListenAndServe(addr, mux)
}

func runDatasetLoad(cmd *cobra.Command, file string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ds, err := dataset.Load(file)
	if err != nil {
		return err
	}
	if err := a.store.CreateDataset(cmd.Context(), ds); err != nil {
		return fmt.Errorf("persist dataset: %w", err)
	}
	fmt.Printf("Loaded dataset %q: %d items\n", ds.Name, ds.TotalItems)
	fmt.Printf("ID: %s\n", ds.ID)
	return nil
}

func runDatasetList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	datasets, err := a.store.ListDatasets(cmd.Context(), 0, 0)
	if err != nil {
		return err
	}
	if len(datasets) == 0 {
		fmt.Println("No datasets.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tITEMS\tCREATED")
	for _, ds := range datasets {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			ds.ID, ds.Name, ds.Version, ds.TotalItems,
			ds.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runEvaluation(cmd *cobra.Command, datasetID, name, description, endpoint string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.orch.CreateRun(cmd.Context(), orchestrator.CreateRunRequest{
		DatasetID:        datasetID,
		Name:             name,
		Description:      description,
		PipelineEndpoint: endpoint,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Run %s created (%d items)\n", run.ID, run.TotalItems)

	// SIGINT cancels the run cooperatively; in-flight items finish and
	// already-persisted results survive.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go cancelOnSignal(sigCh, done, func() {
		_ = a.orch.Cancel(context.Background(), run.ID)
	})

	execErr := a.orch.Execute(context.WithoutCancel(cmd.Context()), run.ID)
	signal.Stop(sigCh)
	close(done)
	if execErr != nil {
		final, gerr := a.orch.GetRun(cmd.Context(), run.ID)
		if gerr == nil {
			fmt.Printf("Run %s: %s (%s)\n", final.ID, final.Status, final.ErrorMessage)
		}
		return execErr
	}

	final, err := a.orch.GetRun(cmd.Context(), run.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Run %s completed: %d/%d items\n", final.ID, final.CompletedItems, final.TotalItems)
	printMetrics(final.Metrics)
	return nil
}

// cancelOnSignal calls cancel when a signal arrives. Closing done
// retires the watcher without cancelling, so a run that finished
// normally is never cancelled by teardown.
func cancelOnSignal(sigCh <-chan os.Signal, done <-chan struct{}, cancel func()) {
	select {
	case <-sigCh:
		cancel()
	case <-done:
	}
}

func runListRuns(cmd *cobra.Command, datasetID string, limit, offset int) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.orch.ListRuns(cmd.Context(), datasetID, limit, offset)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPROGRESS\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
			r.ID, r.Name, r.Status, r.CompletedItems, r.TotalItems,
			r.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runShowResults(cmd *cobra.Command, runID string, jsonOut bool) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.orch.GetRun(cmd.Context(), runID)
	if err != nil {
		return err
	}
	results, err := a.orch.Results(cmd.Context(), runID)
	if err != nil {
		return err
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"run":     run,
			"results": results,
		})
	}

	fmt.Printf("Run %s (%s): %d/%d items\n", run.ID, run.Status, run.CompletedItems, run.TotalItems)
	if run.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", run.ErrorMessage)
	}
	printMetrics(run.Metrics)

	var failed int
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		fmt.Printf("\n%d item(s) failed:\n", failed)
		for _, r := range results {
			if r.Error != "" {
				fmt.Printf("  %s: %s\n", r.DatasetItemID, r.Error)
			}
		}
	}
	return nil
}

func runCompare(cmd *cobra.Command, run1ID, run2ID string, jsonOut bool) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.comp.Compare(cmd.Context(), run1ID, run2ID)
	if err != nil {
		return err
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(report)
	}

	fmt.Printf("Baseline:  %s (%s)\n", report.Run1.ID, report.Run1.Name)
	fmt.Printf("Candidate: %s (%s)\n", report.Run2.ID, report.Run2.Name)
	if report.Partial {
		fmt.Println("Note: some metrics are missing on one side; deltas treat them as 0.")
	}

	names := make([]string, 0, len(report.MetricDeltas))
	for name := range report.MetricDeltas {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tDELTA\tCHANGE")
	for _, name := range names {
		delta := report.MetricDeltas[name]
		pct := report.ImprovementPct[name]
		marker := ""
		if models.InverseMetrics[name] && delta != 0 {
			// Lower is better for these.
			marker = " (inverse)"
		}
		fmt.Fprintf(w, "%s\t%+.4f\t%+.1f%%%s\n", name, delta, pct, marker)
	}
	return w.Flush()
}

func runCancel(cmd *cobra.Command, runID string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orch.Cancel(cmd.Context(), runID); err != nil {
		return err
	}
	fmt.Printf("Run %s cancelled\n", runID)
	return nil
}

func printMetrics(metrics map[string]float64) {
	if len(metrics) == 0 {
		return
	}
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nAggregate metrics:")
	for _, name := range names {
		fmt.Printf("  %-22s %.4f\n", name, metrics[name])
	}
}
