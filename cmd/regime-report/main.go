package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gliregime/internal/config"
	"gliregime/internal/exporter"
	"gliregime/internal/ingest"
	"gliregime/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "pipeline configuration file")
	dataDir := flag.String("data", "", "directory of <series>.csv input files (overrides config)")
	outDir := flag.String("out", "data/reports", "output directory for report CSVs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if *dataDir == "" {
		*dataDir = cfg.Ingest.DataDir
	}

	ctx := context.Background()

	names := make([]string, len(cfg.Series))
	for i, s := range cfg.Series {
		names[i] = s.Name
	}

	provider := ingest.NewCSVProvider(*dataDir, logger)
	policy := ingest.RetryPolicy{MaxAttempts: cfg.Ingest.MaxAttempts, Backoff: cfg.Ingest.Backoff}

	logger.Info("Fetching raw series", "count", len(names), "dir", *dataDir)
	raw, err := ingest.FetchAll(ctx, provider, names, policy)
	if err != nil {
		logger.Error("Failed to fetch raw series", "error", err)
		os.Exit(1)
	}

	runner := pipeline.NewRunner(cfg, logger)
	out, err := runner.Run(ctx, raw)
	if err != nil {
		logger.Error("Pipeline run failed", "error", err)
		os.Exit(1)
	}

	for _, w := range out.Warnings {
		logger.Warn("Data warning", "series", w.Series, "code", w.Code, "message", w.Message)
	}

	writer := exporter.NewCSVWriter(*outDir, logger)
	if err := writer.WriteFeatureTable(out.Features, "features.csv"); err != nil {
		logger.Error("Failed to write feature table", "error", err)
		os.Exit(1)
	}
	if err := writer.WriteRegimes(out.Regimes, "regimes.csv"); err != nil {
		logger.Error("Failed to write regimes", "error", err)
		os.Exit(1)
	}
	if out.Regimes.Transition != nil {
		if err := writer.WriteTransitionMatrix(out.Regimes.Transition, "transition.csv"); err != nil {
			logger.Error("Failed to write transition matrix", "error", err)
			os.Exit(1)
		}
	}

	printSummary(out)
	logger.Info("Regime report completed",
		"run_id", out.RunID,
		"feature_rows", out.Features.Len(),
		"assigned_rows", out.Regimes.Len(),
	)
}

// printSummary prints per-regime row counts to stdout for a quick read.
func printSummary(out *pipeline.Output) {
	counts := map[string]int{}
	for i := 0; i < out.Regimes.Len(); i++ {
		counts[out.Regimes.StateName(i)]++
	}
	fmt.Println("Rows per regime:")
	for _, name := range []string{"expansive", "neutral", "contractive"} {
		if n, ok := counts[name]; ok {
			fmt.Printf("  %-12s %d\n", name, n)
		}
	}
}

func newLogger(cfg config.LoggingSpec) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
