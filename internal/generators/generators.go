// Package generators produces MELT records, one lazy batch per cadence tick.
// Every generator is a pure function of the catalog, the anomaly coverage
// query, and its own named substreams, plus private counters; that is what
// lets a session replay bit-for-bit from its seed.
package generators

import (
	"time"

	"github.com/observelab/meltgen/internal/anomaly"
	"github.com/observelab/meltgen/internal/models"
)

// Generator is the contract the scheduler drives. Produce is invoked once
// per tick of the generator's cadence and returns zero or more records whose
// timestamps are >= now. It never fails on valid inputs; invalid
// configuration is rejected at session construction.
type Generator interface {
	Signal() models.SignalType
	Cadence() time.Duration
	Produce(now time.Time) []models.Record
}

// AnomalyQuery is the slice of the anomaly manager generators consume.
type AnomalyQuery interface {
	ActiveWindows(now time.Time, service string) []*anomaly.Window
	StartedIn(from, to time.Time) []*anomaly.Window
}

// TraceRef identifies the most recent trace emitted for a service. The logs
// generator attaches these ids so log lines correlate with real spans.
type TraceRef struct {
	TraceID string
	SpanID  string
}

// CorrelationTable shares per-service trace references between the traces
// and logs generators. The session is single-threaded, so no locking.
type CorrelationTable struct {
	refs map[string]TraceRef
}

// NewCorrelationTable returns an empty table.
func NewCorrelationTable() *CorrelationTable {
	return &CorrelationTable{refs: make(map[string]TraceRef)}
}

// Record stores the latest trace reference for a service.
func (c *CorrelationTable) Record(service string, ref TraceRef) {
	c.refs[service] = ref
}

// Lookup returns the latest trace reference for a service, if any.
func (c *CorrelationTable) Lookup(service string) (TraceRef, bool) {
	ref, ok := c.refs[service]
	return ref, ok
}
