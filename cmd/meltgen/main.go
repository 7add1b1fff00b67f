package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/observelab/meltgen/internal/config"
	"github.com/observelab/meltgen/internal/engine"
	"github.com/observelab/meltgen/internal/metrics"
	"github.com/observelab/meltgen/internal/models"
	"github.com/observelab/meltgen/internal/sink"
	"github.com/observelab/meltgen/internal/utils"
	"github.com/observelab/meltgen/internal/validation"
)

// streamFiles maps each signal type to its output file name.
var streamFiles = map[models.SignalType]string{
	models.SignalMetrics: "metrics.jsonl",
	models.SignalEvents:  "events.jsonl",
	models.SignalLogs:    "logs.jsonl",
	models.SignalTraces:  "traces.jsonl",
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "generate":
		os.Exit(runGenerate(os.Args[2:]))
	case "validate":
		os.Exit(runValidate(os.Args[2:]))
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `meltgen generates correlated synthetic metrics, events, logs, and traces.

Usage:
  meltgen generate [flags]   generate a seeded dataset
  meltgen validate [flags]   validate a previously generated dataset

Run "meltgen <command> -h" for command flags.
`)
}

func runGenerate(args []string) int {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	var (
		configPath = fs.String("config", "", "Path to configuration file")
		outDir     = fs.String("out", "output", "Output directory for the dataset")
		seed       = fs.Int64("seed", 0, "Override the configured seed")
		duration   = fs.Duration("duration", 0, "Override the configured duration")
		size       = fs.String("size", "", "Stop after approximately this much output (e.g. 100MB, 1GB)")
		anomalies  = fs.String("anomalies", "all", "Comma-separated anomaly kinds to enable, or 'all'")
		startStr   = fs.String("start", "", "Synthetic clock origin, RFC3339 (default: now)")
	)
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", *configPath), slog.Any("error", err))
		return 1
	}
	if *seed != 0 {
		cfg.Generation.Seed = *seed
	}
	if *duration > 0 {
		cfg.Generation.Duration = *duration
	}
	if *startStr != "" {
		cfg.Generation.StartTime = *startStr
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)

	var targetBytes int64
	if *size != "" {
		targetBytes, err = utils.ParseSize(*size)
		if err != nil {
			logger.Error("invalid size", slog.String("size", *size), slog.Any("error", err))
			return 1
		}
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		return 1
	}

	session, err := engine.NewSession(cfg, splitKinds(*anomalies), time.Now().UTC().Truncate(time.Second), logger)
	if err != nil {
		logger.Error("invalid session configuration", slog.Any("error", err))
		return 1
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Error("failed to create output directory", slog.String("dir", *outDir), slog.Any("error", err))
		return 1
	}

	set := make(sink.StreamSet, len(streamFiles))
	files := make([]*os.File, 0, len(streamFiles))
	for signalType, name := range streamFiles {
		f, err := os.Create(filepath.Join(*outDir, name))
		if err != nil {
			logger.Error("failed to create output file", slog.String("file", name), slog.Any("error", err))
			closeAll(files)
			return 1
		}
		files = append(files, f)
		set[signalType] = f
	}
	defer closeAll(files)

	out, err := sink.NewNDJSON(cfg.Sink, set, logger)
	if err != nil {
		logger.Error("failed to build sink", slog.Any("error", err))
		return 1
	}

	if err := writeMetadata(*outDir, cfg, session.Start(), *anomalies); err != nil {
		logger.Error("failed to write metadata", slog.Any("error", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := session.Run(ctx, out, targetBytes)
	if err != nil {
		// Flushed batches up to the failure are durable; surface what we kept.
		logger.Error("generation failed", slog.Any("error", err), slog.Int64("durable_records", stats.TotalRecords))
		writeStatistics(*outDir, stats, logger)
		return 1
	}

	if err := writeStatistics(*outDir, stats, logger); err != nil {
		return 1
	}

	logger.Info("dataset written",
		slog.String("dir", *outDir),
		slog.Int64("records", stats.TotalRecords),
		slog.Int64("bytes", stats.BytesWritten),
	)
	return 0
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	var (
		dir    = fs.String("dir", "output", "Dataset directory to validate")
		strict = fs.Bool("strict", false, "Exit non-zero when statistical checks find suspect records")
	)
	fs.Parse(args)

	logger := utils.NewLogger(os.Getenv("MELTGEN_LOG_LEVEL"), os.Getenv("MELTGEN_LOG_FORMAT") == "json")

	exitCode := 0
	reports := make([]validation.Report, 0, len(models.SignalTypes))
	for _, signalType := range models.SignalTypes {
		path := filepath.Join(*dir, streamFiles[signalType])
		f, err := os.Open(path)
		if err != nil {
			logger.Error("cannot open stream", slog.String("file", path), slog.Any("error", err))
			return 1
		}
		report, err := validation.ValidateStream(f, signalType)
		f.Close()
		if err != nil {
			logger.Error("stream read failed", slog.String("file", path), slog.Any("error", err))
			return 1
		}
		if !report.Valid {
			exitCode = 1
			logger.Error("stream has invalid records",
				slog.String("signal", string(signalType)),
				slog.Int("errors", len(report.Errors)),
			)
		}
		reports = append(reports, report)
	}

	if *strict {
		suspects, err := checkFlaggedMetrics(filepath.Join(*dir, streamFiles[models.SignalMetrics]))
		if err != nil {
			logger.Error("statistical check failed", slog.Any("error", err))
			return 1
		}
		if len(suspects) > 0 {
			exitCode = 1
			logger.Error("flagged metrics inside benign range", slog.Int("count", len(suspects)))
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		logger.Error("failed to write report", slog.Any("error", err))
		return 1
	}
	return exitCode
}

// checkFlaggedMetrics re-reads the metrics stream and checks that every
// anomaly-flagged sample falls outside the benign value range.
func checkFlaggedMetrics(path string) ([]validation.Outlier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var series []models.Metric
	dec := json.NewDecoder(f)
	for dec.More() {
		var m models.Metric
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode metric: %w", err)
		}
		series = append(series, m)
	}
	return validation.FlaggedConsistency(series), nil
}

// metadataDoc describes a dataset: what produced it and how to reproduce it.
type metadataDoc struct {
	Generator    string            `json:"generator"`
	GeneratedAt  time.Time         `json:"generated_at"`
	Seed         int64             `json:"seed"`
	Start        time.Time         `json:"start"`
	Duration     string            `json:"duration"`
	Services     []string          `json:"services"`
	Hosts        []string          `json:"hosts"`
	Environments []string          `json:"environments"`
	Anomalies    string            `json:"anomalies"`
	Files        map[string]string `json:"files"`
}

func writeMetadata(dir string, cfg *config.Config, start time.Time, anomalies string) error {
	files := make(map[string]string, len(streamFiles))
	for signalType, name := range streamFiles {
		files[string(signalType)] = name
	}
	doc := metadataDoc{
		Generator:    "meltgen",
		GeneratedAt:  time.Now().UTC(),
		Seed:         cfg.Generation.Seed,
		Start:        start,
		Duration:     cfg.Generation.Duration.String(),
		Services:     cfg.Generation.Services,
		Hosts:        cfg.Generation.Hosts,
		Environments: cfg.Generation.Environments,
		Anomalies:    anomalies,
		Files:        files,
	}
	return writeJSON(filepath.Join(dir, "metadata.json"), doc)
}

func writeStatistics(dir string, stats engine.Stats, logger *slog.Logger) error {
	if err := writeJSON(filepath.Join(dir, "statistics.json"), stats); err != nil {
		logger.Error("failed to write statistics", slog.Any("error", err))
		return err
	}
	return nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func splitKinds(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func closeAll(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}
