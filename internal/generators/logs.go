package generators

import (
	"fmt"
	"strings"
	"time"

	"github.com/observelab/meltgen/internal/anomaly"
	"github.com/observelab/meltgen/internal/catalog"
	"github.com/observelab/meltgen/internal/config"
	"github.com/observelab/meltgen/internal/models"
	"github.com/observelab/meltgen/internal/rng"
)

// logTemplates maps each level to its message templates. Placeholders are
// filled from the service's substream.
var logTemplates = map[models.LogLevel][]string{
	models.LevelDebug: {
		"Debug information: processing request {request_id}",
		"Database query executed: {query}",
		"Cache hit for key {key}",
		"Processing user action: {action}",
	},
	models.LevelInfo: {
		"User {user_id} logged in successfully",
		"Request processed successfully",
		"Service started successfully",
		"Configuration loaded",
		"Health check passed",
	},
	models.LevelWarn: {
		"Slow query detected: {query} took {duration}ms",
		"High memory usage: {usage}%",
		"Deprecated API endpoint used: {endpoint}",
		"Connection pool nearly exhausted",
	},
	models.LevelError: {
		"Database connection failed",
		"Failed to process request: {error}",
		"Authentication failed for user {user_id}",
		"External service unavailable",
		"Validation error: {field} is required",
	},
	models.LevelCritical: {
		"Service is shutting down due to critical error",
		"Database connection pool exhausted",
		"Out of memory error",
		"Security breach detected",
	},
}

// traceAttachRate is the fraction of log lines that carry trace correlation
// ids when the service has emitted a trace.
const traceAttachRate = 0.3

// LogsGenerator emits one log line per service per tick, with the level
// distribution shifted by any covering anomaly windows.
type LogsGenerator struct {
	cadence     time.Duration
	cat         *catalog.Catalog
	anomalies   AnomalyQuery
	correlation *CorrelationTable
	baseWeights []float64
	streams     map[string]*rng.Stream
}

// NewLogsGenerator wires a logs generator from the session config. The base
// level weights derive from debugLogRatio and errorRate.
func NewLogsGenerator(gen config.GenerationConfig, cat *catalog.Catalog, anomalies AnomalyQuery, correlation *CorrelationTable, src *rng.Source) *LogsGenerator {
	infoWeight := 0.7 - gen.DebugLogRatio
	if infoWeight < 0.05 {
		infoWeight = 0.05
	}
	base := []float64{
		gen.DebugLogRatio,
		infoWeight,
		0.15,
		gen.ErrorRate,
		gen.ErrorRate / 10,
	}

	streams := make(map[string]*rng.Stream, len(cat.Services()))
	for _, service := range cat.Services() {
		streams[service] = src.Substream("logs/" + service)
	}

	return &LogsGenerator{
		cadence:     gen.LogsFrequency,
		cat:         cat,
		anomalies:   anomalies,
		correlation: correlation,
		baseWeights: base,
		streams:     streams,
	}
}

func (g *LogsGenerator) Signal() models.SignalType { return models.SignalLogs }
func (g *LogsGenerator) Cadence() time.Duration    { return g.cadence }

// Produce emits one line per service for this tick.
func (g *LogsGenerator) Produce(now time.Time) []models.Record {
	out := make([]models.Record, 0, len(g.cat.Services()))
	for _, service := range g.cat.Services() {
		stream := g.streams[service]
		windows := g.anomalies.ActiveWindows(now, service)

		weights := anomaly.LevelWeights(windows, g.baseWeights)
		level := models.LogLevels[stream.WeightedIndex(weights)]
		message := g.fillTemplate(stream, logTemplates[level][stream.IntN(len(logTemplates[level]))])

		hosts := g.cat.HostsFor(service)
		envs := g.cat.EnvironmentsFor(service)

		log := models.Log{
			Timestamp: now,
			Level:     level,
			Service:   service,
			Message:   message,
			Metadata: map[string]string{
				"service":     service,
				"host":        hosts[stream.IntN(len(hosts))],
				"environment": envs[stream.IntN(len(envs))],
				"version":     version(stream),
				"thread_id":   fmt.Sprintf("%d", stream.IntN(100)+1),
				"process_id":  fmt.Sprintf("%d", stream.IntN(9000)+1000),
			},
		}

		// The roll happens before the lookup so correlation availability
		// cannot shift the substream.
		attach := stream.Float64() < traceAttachRate
		if ref, ok := g.correlation.Lookup(service); attach && ok {
			log.TraceID = ref.TraceID
			log.SpanID = ref.SpanID
		}

		out = append(out, log)
	}
	return out
}

func (g *LogsGenerator) fillTemplate(stream *rng.Stream, message string) string {
	if !strings.Contains(message, "{") {
		return message
	}
	replacements := []struct {
		placeholder string
		value       func() string
	}{
		{"{request_id}", func() string { return "req_" + stream.Hex(8) }},
		{"{user_id}", func() string { return fmt.Sprintf("user_%d", stream.IntN(9000)+1000) }},
		{"{query}", func() string {
			queries := []string{"SELECT * FROM users", "UPDATE orders SET status", "INSERT INTO logs"}
			return queries[stream.IntN(len(queries))]
		}},
		{"{key}", func() string { return fmt.Sprintf("cache_key_%d", stream.IntN(1000)+1) }},
		{"{action}", func() string {
			actions := []string{"login", "logout", "purchase", "search"}
			return actions[stream.IntN(len(actions))]
		}},
		{"{error}", func() string {
			errs := []string{"timeout", "validation failed", "service unavailable"}
			return errs[stream.IntN(len(errs))]
		}},
		{"{duration}", func() string { return fmt.Sprintf("%d", stream.IntN(4900)+100) }},
		{"{usage}", func() string { return fmt.Sprintf("%d", stream.IntN(16)+80) }},
		{"{endpoint}", func() string {
			endpoints := []string{"/api/v1/users", "/api/v1/orders", "/legacy/stats"}
			return endpoints[stream.IntN(len(endpoints))]
		}},
		{"{field}", func() string {
			fields := []string{"email", "password", "user_id", "order_id"}
			return fields[stream.IntN(len(fields))]
		}},
	}
	for _, r := range replacements {
		if strings.Contains(message, r.placeholder) {
			message = strings.ReplaceAll(message, r.placeholder, r.value())
		}
	}
	return message
}

func version(stream *rng.Stream) string {
	return fmt.Sprintf("v%d.%d.%d", stream.IntN(3)+1, stream.IntN(10), stream.IntN(10))
}
