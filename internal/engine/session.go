// Package engine wires one generation session: the deterministic random
// source, the entity catalog, the anomaly window manager, the four signal
// generators, and the scheduler that merges their output into a single
// time-ordered stream.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/observelab/meltgen/internal/anomaly"
	"github.com/observelab/meltgen/internal/catalog"
	"github.com/observelab/meltgen/internal/config"
	"github.com/observelab/meltgen/internal/generators"
	"github.com/observelab/meltgen/internal/metrics"
	"github.com/observelab/meltgen/internal/models"
	"github.com/observelab/meltgen/internal/rng"
	"github.com/observelab/meltgen/internal/sink"
	"github.com/observelab/meltgen/internal/utils"
)

// Session is one seeded generation run. Sessions are single-use: a new seed
// or config means a new session. Independent sessions share no mutable
// state, so they may run in parallel.
type Session struct {
	logger *slog.Logger
	cfg    config.Config
	kinds  []anomaly.Kind
	start  time.Time
	bucket time.Duration

	src  *rng.Source
	cat  *catalog.Catalog
	mgr  *anomaly.Manager
	gens []generators.Generator
}

// Stats summarises a completed (or aborted) run for the statistics document.
type Stats struct {
	Seed          int64                       `json:"seed"`
	Start         time.Time                   `json:"start"`
	RecordCounts  map[models.SignalType]int64 `json:"record_counts"`
	TotalRecords  int64                       `json:"total_records"`
	BytesWritten  int64                       `json:"bytes_written"`
	Batches       int64                       `json:"batches"`
	Elapsed       time.Duration               `json:"elapsed_ns"`
	RecordsPerSec float64                     `json:"records_per_second"`
	FlushP95      time.Duration               `json:"flush_p95_ns"`
	Anomalies     []string                    `json:"anomalies"`
}

// NewSession validates the configuration and builds a ready-to-run session.
// defaultStart anchors the synthetic clock when the config does not pin a
// start time; all validation failures surface here, never mid-generation.
func NewSession(cfg *config.Config, anomalyKinds []string, defaultStart time.Time, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kinds, err := anomaly.ParseKinds(anomalyKinds)
	if err != nil {
		return nil, utils.NewConfigError("anomalies", err.Error())
	}

	start := defaultStart
	if cfg.Generation.StartTime != "" {
		start, err = utils.ParseRFC3339(cfg.Generation.StartTime)
		if err != nil {
			return nil, utils.NewConfigError("generation.startTime", err.Error())
		}
	}
	if start.IsZero() {
		return nil, utils.NewConfigError("generation.startTime", "no start time configured or supplied")
	}
	start = start.UTC()

	cat, err := catalog.New(catalog.Spec{
		Services:     cfg.Generation.Services,
		Hosts:        cfg.Generation.Hosts,
		Environments: cfg.Generation.Environments,
		HostsFor:     cfg.Generation.ServiceHosts,
		EnvsFor:      cfg.Generation.ServiceEnvs,
		Dependents:   cfg.Generation.Dependencies,
	})
	if err != nil {
		return nil, utils.NewConfigError("generation", err.Error())
	}

	src := rng.New(cfg.Generation.Seed)
	mgr := anomaly.NewManager(cfg.Anomalies, kinds, cat, src, logger)
	correlation := generators.NewCorrelationTable()

	bucket := minCadence(cfg.Generation)

	gens := []generators.Generator{
		generators.NewMetricsGenerator(cfg.Generation, cat, mgr, src),
		generators.NewEventsGenerator(cfg.Generation, bucket, cat, mgr, src),
		generators.NewLogsGenerator(cfg.Generation, cat, mgr, correlation, src),
		generators.NewTracesGenerator(cfg.Generation, cat, mgr, correlation, src),
	}

	return &Session{
		logger: logger,
		cfg:    *cfg,
		kinds:  kinds,
		start:  start,
		bucket: bucket,
		src:    src,
		cat:    cat,
		mgr:    mgr,
		gens:   gens,
	}, nil
}

// Start returns the synthetic clock origin for this session.
func (s *Session) Start() time.Time { return s.start }

// Run generates records into the sink until the configured duration is
// exhausted or targetBytes (when positive) is reached, whichever comes
// first. The final partial batches are always flushed before returning.
func (s *Session) Run(ctx context.Context, out *sink.NDJSON, targetBytes int64) (Stats, error) {
	wallStart := time.Now()

	s.logger.Info("generation session starting",
		slog.Int64("seed", s.cfg.Generation.Seed),
		slog.Time("start", s.start),
		slog.Duration("duration", s.cfg.Generation.Duration),
		slog.Int64("target_bytes", targetBytes),
		slog.Any("anomalies", kindNames(s.kinds)),
	)

	sched := newScheduler(
		s.logger,
		s.cfg.Generation.Seed,
		s.mgr,
		s.gens,
		s.start,
		s.cfg.Generation.Duration,
		s.bucket,
		targetBytes,
	)

	runErr := sched.run(ctx, out)
	if runErr == nil {
		runErr = out.Flush(ctx)
	}

	elapsed := time.Since(wallStart)
	metrics.ObserveSession(elapsed)

	stats := s.buildStats(out, elapsed)
	if runErr != nil {
		s.logger.Error("generation session failed",
			slog.Any("error", runErr),
			slog.Int64("durable_records", stats.TotalRecords),
		)
		return stats, fmt.Errorf("session seed=%d: %w", s.cfg.Generation.Seed, runErr)
	}

	s.logger.Info("generation session complete",
		slog.Int64("records", stats.TotalRecords),
		slog.Int64("bytes", stats.BytesWritten),
		slog.Duration("elapsed", elapsed),
	)
	return stats, nil
}

func (s *Session) buildStats(out *sink.NDJSON, elapsed time.Duration) Stats {
	counts := out.FlushedRecords()
	var total int64
	for _, c := range counts {
		total += c
	}

	rps := 0.0
	if elapsed > 0 {
		rps = float64(total) / elapsed.Seconds()
	}

	return Stats{
		Seed:          s.cfg.Generation.Seed,
		Start:         s.start,
		RecordCounts:  counts,
		TotalRecords:  total,
		BytesWritten:  out.BytesWritten(),
		Batches:       out.Batches(),
		Elapsed:       elapsed,
		RecordsPerSec: rps,
		FlushP95:      out.FlushLatencyP95(),
		Anomalies:     kindNames(s.kinds),
	}
}

func minCadence(gen config.GenerationConfig) time.Duration {
	bucket := gen.MetricsFrequency
	for _, d := range []time.Duration{gen.LogsFrequency, gen.TracesFrequency, gen.EventsFrequency} {
		if d < bucket {
			bucket = d
		}
	}
	return bucket
}

func kindNames(kinds []anomaly.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
