package anomaly

import (
	"log/slog"
	"time"

	"github.com/observelab/meltgen/internal/catalog"
	"github.com/observelab/meltgen/internal/config"
	"github.com/observelab/meltgen/internal/rng"
)

// Manager owns the active anomaly window set for one generation session.
// Each (kind, service) pair runs an Idle -> Active -> Idle state machine:
// triggers are evaluated once per bucket, a pair cannot open a second window
// while one is active, and expired windows are pruned eagerly so coverage
// queries stay proportional to the active count.
type Manager struct {
	logger  *slog.Logger
	cat     *catalog.Catalog
	enabled []Kind
	configs map[Kind]config.WindowConfig
	streams map[Kind]*rng.Stream

	active []*Window
}

// NewManager builds a Manager evaluating only the enabled kinds. Each kind
// draws from its own substream so enabling one kind never shifts another
// kind's trigger sequence.
func NewManager(cfg config.AnomalyConfig, enabled []Kind, cat *catalog.Catalog, src *rng.Source, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	configs := map[Kind]config.WindowConfig{
		KindCPUSpike:      cfg.CPUSpike,
		KindServiceOutage: cfg.ServiceOutage,
		KindLatencySpike:  cfg.LatencySpike,
		KindErrorBurst:    cfg.ErrorBurst,
	}

	streams := make(map[Kind]*rng.Stream, len(enabled))
	for _, kind := range enabled {
		streams[kind] = src.Substream("anomaly/" + string(kind))
	}

	return &Manager{
		logger:  logger,
		cat:     cat,
		enabled: append([]Kind(nil), enabled...),
		configs: configs,
		streams: streams,
	}
}

// Advance moves the manager to the given bucket instant: it prunes expired
// windows and evaluates one trigger per (enabled kind, service). Callers
// must advance monotonically, once per bucket.
func (m *Manager) Advance(now time.Time) {
	m.prune(now)

	for _, kind := range m.enabled {
		cfg := m.configs[kind]
		stream := m.streams[kind]
		for _, service := range m.cat.Services() {
			// The draw happens unconditionally so suppression does not
			// shift the substream for later services.
			roll := stream.Float64()
			if roll >= cfg.Probability {
				continue
			}
			if m.coveredBy(kind, service, now) {
				continue
			}
			m.open(kind, cfg, service, now, stream)
		}
	}
}

func (m *Manager) open(kind Kind, cfg config.WindowConfig, service string, now time.Time, stream *rng.Stream) {
	duration := cfg.MinDuration
	if cfg.MaxDuration > cfg.MinDuration {
		duration = time.Duration(stream.Int64Range(int64(cfg.MinDuration), int64(cfg.MaxDuration)))
	}
	intensity := cfg.MinIntensity
	if cfg.MaxIntensity > cfg.MinIntensity {
		intensity = stream.Range(cfg.MinIntensity, cfg.MaxIntensity)
	}

	services := []string{service}
	if kind == KindServiceOutage {
		services = append(services, m.cat.Dependents(service)...)
	}

	w := &Window{
		Kind:           kind,
		Services:       services,
		Start:          now,
		Duration:       duration,
		Intensity:      intensity,
		SpanDropRate:   cfg.SpanDropRate,
		BurstErrorRate: cfg.BurstErrorRate,
	}
	m.active = append(m.active, w)

	m.logger.Debug("anomaly window opened",
		slog.String("kind", string(kind)),
		slog.String("service", service),
		slog.Time("start", w.Start),
		slog.Duration("duration", w.Duration),
		slog.Float64("intensity", w.Intensity),
	)
}

func (m *Manager) coveredBy(kind Kind, service string, now time.Time) bool {
	for _, w := range m.active {
		if w.Kind == kind && w.Covers(now, service) {
			return true
		}
	}
	return false
}

func (m *Manager) prune(now time.Time) {
	kept := m.active[:0]
	for _, w := range m.active {
		if now.Before(w.End()) {
			kept = append(kept, w)
		}
	}
	for i := len(kept); i < len(m.active); i++ {
		m.active[i] = nil
	}
	m.active = kept
}

// ActiveWindows returns the windows covering (now, service). The result
// aliases no internal state the caller can corrupt; windows are immutable.
func (m *Manager) ActiveWindows(now time.Time, service string) []*Window {
	var out []*Window
	for _, w := range m.active {
		if w.Covers(now, service) {
			out = append(out, w)
		}
	}
	return out
}

// StartedIn returns windows whose Idle -> Active transition falls in
// [from, to). The events generator uses this to emit causal lead events at
// window onset.
func (m *Manager) StartedIn(from, to time.Time) []*Window {
	var out []*Window
	for _, w := range m.active {
		if !w.Start.Before(from) && w.Start.Before(to) {
			out = append(out, w)
		}
	}
	return out
}

// ActiveCount returns the number of live windows; exported for engine
// metrics.
func (m *Manager) ActiveCount() int { return len(m.active) }
