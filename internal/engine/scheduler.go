package engine

import (
	"container/heap"
	"context"
	"log/slog"
	"time"

	"github.com/observelab/meltgen/internal/anomaly"
	"github.com/observelab/meltgen/internal/generators"
	"github.com/observelab/meltgen/internal/metrics"
	"github.com/observelab/meltgen/internal/models"
	"github.com/observelab/meltgen/internal/sink"
	"github.com/observelab/meltgen/internal/utils"
)

// pendingRecord is a generated record waiting for the merge low-watermark to
// pass its timestamp.
type pendingRecord struct {
	rec models.Record
	seq int64 // insertion order; keeps parents ahead of children on ties
}

type pendingHeap []pendingRecord

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	ti, tj := h[i].rec.Time(), h[j].rec.Time()
	if !ti.Equal(tj) {
		return ti.Before(tj)
	}
	pi, pj := h[i].rec.Signal().MergePriority(), h[j].rec.Signal().MergePriority()
	if pi != pj {
		return pi < pj
	}
	return h[i].seq < h[j].seq
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) { *h = append(*h, x.(pendingRecord)) }

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// scheduler advances the session clock, pulls due generators, and hands
// records to the sink in non-decreasing timestamp order. It is the only
// component that sees all four signal streams at once.
type scheduler struct {
	logger  *slog.Logger
	seed    int64
	mgr     *anomaly.Manager
	gens    []generators.Generator
	start   time.Time
	end     time.Time
	bucket  time.Duration
	target  int64 // byte target; 0 means duration-bound only

	pending    pendingHeap
	seq        int64
	emitted    map[models.SignalType]int64
	sizeSum    map[models.SignalType]int64
	lastEmit   time.Time
	lastLogSeq int64
}

func newScheduler(logger *slog.Logger, seed int64, mgr *anomaly.Manager, gens []generators.Generator, start time.Time, duration, bucket time.Duration, target int64) *scheduler {
	return &scheduler{
		logger:  logger,
		seed:    seed,
		mgr:     mgr,
		gens:    gens,
		start:   start,
		end:     start.Add(duration),
		bucket:  bucket,
		target:  target,
		emitted: make(map[models.SignalType]int64, len(models.SignalTypes)),
		sizeSum: make(map[models.SignalType]int64, len(models.SignalTypes)),
	}
}

// run drives generation until the duration is exhausted, the byte target is
// reached, or ctx is cancelled. Cancellation is cooperative, checked once
// per tick, so already-flushed output is never corrupted.
func (s *scheduler) run(ctx context.Context, out *sink.NDJSON) error {
	nextDue := make([]time.Time, len(s.gens))
	for i := range nextDue {
		nextDue[i] = s.start
	}
	nextBucket := s.start

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("generation cancelled", slog.Time("at", s.lastEmit))
			return s.drain(ctx, out, s.end)
		default:
		}

		tick := minTime(nextDue)
		if !tick.Before(s.end) {
			break
		}

		for !nextBucket.After(tick) {
			s.mgr.Advance(nextBucket)
			nextBucket = nextBucket.Add(s.bucket)
		}
		metrics.SetActiveWindows(s.mgr.ActiveCount())

		for i, gen := range s.gens {
			if !nextDue[i].Equal(tick) {
				continue
			}
			for _, rec := range gen.Produce(tick) {
				heap.Push(&s.pending, pendingRecord{rec: rec, seq: s.seq})
				s.seq++
			}
			nextDue[i] = nextDue[i].Add(gen.Cadence())
		}

		// Everything stamped before the next tick can no longer be preceded.
		watermark := minTime(nextDue)
		if err := s.release(ctx, out, watermark); err != nil {
			return err
		}

		if s.target > 0 {
			written := out.BytesWritten()
			if written >= s.target {
				s.logger.Info("byte target reached",
					slog.Int64("bytes", written),
					slog.Int64("target", s.target),
				)
				return nil
			}
			if s.seq-s.lastLogSeq >= 10000 {
				s.lastLogSeq = s.seq
				s.logger.Debug("generation progress",
					slog.Int64("bytes", written),
					slog.Int64("target", s.target),
					slog.Int64("estimated_records_remaining", s.estimatedRecordsToTarget(written)),
				)
			}
		}
	}

	return s.drain(ctx, out, s.end)
}

// release emits pending records with timestamps before the watermark.
func (s *scheduler) release(ctx context.Context, out *sink.NDJSON, watermark time.Time) error {
	for s.pending.Len() > 0 {
		top := s.pending[0].rec
		if !top.Time().Before(watermark) {
			return nil
		}
		heap.Pop(&s.pending)

		if top.Time().Before(s.lastEmit) {
			return &utils.InvariantError{
				Seed:    s.seed,
				Elapsed: top.Time().Sub(s.start),
				Signal:  top.Signal(),
				Index:   s.emitted[top.Signal()],
				Msg:     "record timestamp precedes merge watermark",
			}
		}
		s.lastEmit = top.Time()

		n, err := out.Write(ctx, top)
		if err != nil {
			return err
		}
		s.emitted[top.Signal()]++
		s.sizeSum[top.Signal()] += int64(n)
		metrics.ObserveRecord(string(top.Signal()))
	}
	return nil
}

// drain flushes every record still pending up to the horizon.
func (s *scheduler) drain(ctx context.Context, out *sink.NDJSON, horizon time.Time) error {
	return s.release(ctx, out, horizon.Add(time.Nanosecond))
}

// estimatedRecordsToTarget converts the bytes still to write into an
// approximate record count using the running average serialized record size.
func (s *scheduler) estimatedRecordsToTarget(written int64) int64 {
	if s.target <= 0 || written >= s.target {
		return 0
	}
	var count, bytes int64
	for _, signal := range models.SignalTypes {
		count += s.emitted[signal]
		bytes += s.sizeSum[signal]
	}
	if count == 0 || bytes == 0 {
		return 0
	}
	avg := float64(bytes) / float64(count)
	return int64(float64(s.target-written) / avg)
}

func minTime(times []time.Time) time.Time {
	min := times[0]
	for _, t := range times[1:] {
		if t.Before(min) {
			min = t
		}
	}
	return min
}
