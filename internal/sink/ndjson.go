// Package sink streams generated records out as newline-delimited JSON, one
// stream per signal type, in bounded-size batches. Resident memory is
// bounded by batch size regardless of how much data a session produces.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/observelab/meltgen/internal/config"
	"github.com/observelab/meltgen/internal/metrics"
	"github.com/observelab/meltgen/internal/models"
	"github.com/observelab/meltgen/internal/utils"
)

// StreamSet maps each signal type to its output writer. Missing entries are
// a construction error: the engine emits all four types.
type StreamSet map[models.SignalType]io.Writer

// NDJSON is an append-only batching sink.
type NDJSON struct {
	cfg       config.SinkConfig
	logger    *slog.Logger
	streams   map[models.SignalType]*stream
	latencies *utils.LatencyTracker
	batches   int64
}

type stream struct {
	w          io.Writer
	buf        bytes.Buffer
	bufRecords int
	flushed    int64 // records durably written
	bytes      int64
}

// NewNDJSON builds a sink over the given writers.
func NewNDJSON(cfg config.SinkConfig, set StreamSet, logger *slog.Logger) (*NDJSON, error) {
	if logger == nil {
		logger = slog.Default()
	}
	streams := make(map[models.SignalType]*stream, len(models.SignalTypes))
	for _, signal := range models.SignalTypes {
		w, ok := set[signal]
		if !ok || w == nil {
			return nil, fmt.Errorf("sink: missing writer for %s stream", signal)
		}
		streams[signal] = &stream{w: w}
	}
	return &NDJSON{
		cfg:       cfg,
		logger:    logger,
		streams:   streams,
		latencies: utils.NewLatencyTracker(256),
	}, nil
}

// Write serializes one record into its stream's batch, flushing the batch if
// it crosses the configured thresholds. It returns the serialized size so
// the scheduler can maintain per-type size averages.
func (s *NDJSON) Write(ctx context.Context, rec models.Record) (int, error) {
	st := s.streams[rec.Signal()]

	line, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("marshal %s record: %w", rec.Signal(), err)
	}

	st.buf.Write(line)
	st.buf.WriteByte('\n')
	st.bufRecords++

	if st.buf.Len() >= s.cfg.BatchBytes || st.bufRecords >= s.cfg.BatchRecords {
		if err := s.flush(ctx, rec.Signal(), st); err != nil {
			return 0, err
		}
	}
	return len(line) + 1, nil
}

// Flush drains every stream's pending batch. Call once at end of session.
func (s *NDJSON) Flush(ctx context.Context) error {
	for _, signal := range models.SignalTypes {
		if err := s.flush(ctx, signal, s.streams[signal]); err != nil {
			return err
		}
	}
	return nil
}

// flush writes the whole batch in a single call, retrying with backoff. On
// exhausted retries nothing from the batch counts as flushed.
func (s *NDJSON) flush(ctx context.Context, signal models.SignalType, st *stream) error {
	if st.bufRecords == 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.cfg.RetryBackoff * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return &utils.SinkError{Signal: signal, Flushed: st.flushed, Err: ctx.Err()}
			case <-time.After(backoff):
			}
			s.logger.Warn("retrying batch flush",
				slog.String("signal", string(signal)),
				slog.Int("attempt", attempt),
				slog.Any("error", lastErr),
			)
		}

		start := time.Now()
		n, err := st.w.Write(st.buf.Bytes())
		if err == nil && n == st.buf.Len() {
			s.latencies.Observe(time.Since(start))
			st.bytes += int64(n)
			st.flushed += int64(st.bufRecords)
			st.buf.Reset()
			st.bufRecords = 0
			s.batches++
			metrics.ObserveBatchFlush()
			return nil
		}
		if err == nil {
			err = io.ErrShortWrite
		}
		lastErr = err
	}

	return &utils.SinkError{Signal: signal, Flushed: st.flushed, Err: lastErr}
}

// BytesWritten returns total bytes durably flushed plus bytes currently
// buffered; the scheduler enforces the size target against this running
// total.
func (s *NDJSON) BytesWritten() int64 {
	var total int64
	for _, st := range s.streams {
		total += st.bytes + int64(st.buf.Len())
	}
	return total
}

// FlushedRecords returns per-type durably flushed record counts.
func (s *NDJSON) FlushedRecords() map[models.SignalType]int64 {
	out := make(map[models.SignalType]int64, len(s.streams))
	for signal, st := range s.streams {
		out[signal] = st.flushed
	}
	return out
}

// Batches returns the number of batch flushes performed; bounded-memory
// tests assert on this instead of heap inspection.
func (s *NDJSON) Batches() int64 { return s.batches }

// FlushLatencyP95 reports the 95th percentile batch flush latency.
func (s *NDJSON) FlushLatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}
