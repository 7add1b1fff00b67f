package generators

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/observelab/meltgen/internal/anomaly"
	"github.com/observelab/meltgen/internal/catalog"
	"github.com/observelab/meltgen/internal/config"
	"github.com/observelab/meltgen/internal/models"
	"github.com/observelab/meltgen/internal/rng"
)

var eventTypes = []string{
	"deployment", "scaling", "alert", "incident", "maintenance",
	"security", "backup", "configuration", "network", "performance",
}

var eventSources = []string{
	"ci-cd-pipeline", "monitoring-system", "auto-scaler",
	"security-scanner", "backup-service", "load-balancer",
}

// severityWeights maps event type to DEBUG..CRITICAL weights.
var severityWeights = map[string][]float64{
	"deployment":    {0.1, 0.8, 0.1, 0.0, 0.0},
	"scaling":       {0.0, 0.9, 0.1, 0.0, 0.0},
	"alert":         {0.0, 0.2, 0.5, 0.3, 0.0},
	"incident":      {0.0, 0.0, 0.3, 0.5, 0.2},
	"maintenance":   {0.0, 0.9, 0.1, 0.0, 0.0},
	"security":      {0.0, 0.3, 0.4, 0.2, 0.1},
	"backup":        {0.1, 0.8, 0.1, 0.0, 0.0},
	"configuration": {0.1, 0.7, 0.2, 0.0, 0.0},
	"network":       {0.0, 0.4, 0.4, 0.2, 0.0},
	"performance":   {0.0, 0.3, 0.5, 0.2, 0.0},
}

var defaultSeverityWeights = []float64{0.2, 0.6, 0.2, 0.0, 0.0}

// EventsGenerator emits operational events with Poisson-like inter-arrival
// times, plus an immediate incident or alert event whenever an anomaly
// window opens for a service. That onset event leads the corresponding
// metric/log/trace degradation, giving RCA pipelines a causal head start.
//
// Its cadence is the session bucket width, not the mean arrival interval, so
// window onsets are observed promptly; the arrival clock controls how often
// routine events actually fire.
type EventsGenerator struct {
	cadence     time.Duration
	meanArrival time.Duration
	cat         *catalog.Catalog
	anomalies   AnomalyQuery
	stream      *rng.Stream

	nextArrival time.Time
	initialized bool
}

// NewEventsGenerator wires an events generator. bucket is the smallest
// generator cadence in the session.
func NewEventsGenerator(gen config.GenerationConfig, bucket time.Duration, cat *catalog.Catalog, anomalies AnomalyQuery, src *rng.Source) *EventsGenerator {
	return &EventsGenerator{
		cadence:     bucket,
		meanArrival: gen.EventsFrequency,
		cat:         cat,
		anomalies:   anomalies,
		stream:      src.Substream("events"),
	}
}

func (g *EventsGenerator) Signal() models.SignalType { return models.SignalEvents }
func (g *EventsGenerator) Cadence() time.Duration    { return g.cadence }

// Produce emits onset events for windows that opened at this bucket and any
// routine events whose arrival clock has come due.
func (g *EventsGenerator) Produce(now time.Time) []models.Record {
	if !g.initialized {
		g.nextArrival = now.Add(g.exponential())
		g.initialized = true
	}

	var out []models.Record

	for _, w := range g.anomalies.StartedIn(now, now.Add(time.Nanosecond)) {
		out = append(out, g.onsetEvent(now, w))
	}

	for !g.nextArrival.After(now) {
		out = append(out, g.routineEvent(now))
		g.nextArrival = g.nextArrival.Add(g.exponential())
	}

	return out
}

// exponential samples the Poisson inter-arrival gap, floored at one
// nanosecond so the arrival clock always advances.
func (g *EventsGenerator) exponential() time.Duration {
	u := g.stream.Float64()
	gap := time.Duration(-float64(g.meanArrival) * math.Log(1-u))
	if gap < time.Nanosecond {
		gap = time.Nanosecond
	}
	return gap
}

func (g *EventsGenerator) onsetEvent(now time.Time, w *anomaly.Window) models.Event {
	service := w.Primary()

	eventType := "alert"
	severity := models.SeverityError
	message := ""
	switch w.Kind {
	case anomaly.KindServiceOutage:
		eventType = "incident"
		severity = models.SeverityCritical
		message = fmt.Sprintf("Incident detected: %s unavailable", service)
	case anomaly.KindErrorBurst:
		eventType = "incident"
		message = fmt.Sprintf("Error rate spike detected in %s", service)
	case anomaly.KindCPUSpike:
		message = fmt.Sprintf("Alert triggered: High CPU usage on %s", service)
	case anomaly.KindLatencySpike:
		message = fmt.Sprintf("Alert triggered: High latency on %s", service)
	}

	return models.Event{
		Timestamp: now,
		EventType: eventType,
		Severity:  severity,
		Source:    "monitoring-system",
		Message:   message,
		Metadata:  g.metadata(service),
	}
}

func (g *EventsGenerator) routineEvent(now time.Time) models.Event {
	eventType := eventTypes[g.stream.IntN(len(eventTypes))]
	services := g.cat.Services()
	service := services[g.stream.IntN(len(services))]

	weights, ok := severityWeights[eventType]
	if !ok {
		weights = defaultSeverityWeights
	}
	severity := models.EventSeverities[g.stream.WeightedIndex(weights)]

	metadata := g.metadata(service)
	message := g.message(eventType, service)
	switch eventType {
	case "deployment":
		metadata["version"] = version(g.stream)
		metadata["deployment_id"] = "dep_" + g.stream.Hex(8)
	case "scaling":
		metadata["instance_count"] = fmt.Sprintf("%d", g.stream.IntN(9)+2)
	case "alert":
		rules := []string{"high_cpu", "high_memory", "error_rate"}
		metadata["alert_rule"] = rules[g.stream.IntN(len(rules))]
	}

	return models.Event{
		Timestamp: now,
		EventType: eventType,
		Severity:  severity,
		Source:    eventSources[g.stream.IntN(len(eventSources))],
		Message:   message,
		Metadata:  metadata,
	}
}

func (g *EventsGenerator) message(eventType, service string) string {
	switch eventType {
	case "deployment":
		return fmt.Sprintf("Service %s version %s deployed successfully", service, version(g.stream))
	case "scaling":
		old := g.stream.IntN(7) + 2
		next := g.stream.IntN(11) + 2
		return fmt.Sprintf("Auto-scaling %s from %d to %d instances", service, old, next)
	case "alert":
		return fmt.Sprintf("Alert triggered: High CPU usage on %s", service)
	case "incident":
		return fmt.Sprintf("Service %s experiencing degraded performance", service)
	case "maintenance":
		return fmt.Sprintf("Maintenance window started for %s", service)
	}
	return fmt.Sprintf("%s event triggered for %s", eventType, service)
}

func (g *EventsGenerator) metadata(service string) map[string]string {
	hosts := g.cat.HostsFor(service)
	envs := g.cat.EnvironmentsFor(service)
	return map[string]string{
		"service":        service,
		"host":           hosts[g.stream.IntN(len(hosts))],
		"environment":    envs[g.stream.IntN(len(envs))],
		"event_id":       "evt_" + shortUUID(g.stream, 8),
		"correlation_id": "corr_" + shortUUID(g.stream, 12),
	}
}

// shortUUID mints a deterministic UUID from the stream and keeps the first n
// hex characters.
func shortUUID(stream *rng.Stream, n int) string {
	u, err := uuid.NewRandomFromReader(stream)
	if err != nil {
		return stream.Hex(n)
	}
	s := fmt.Sprintf("%x", [16]byte(u))
	return s[:n]
}
