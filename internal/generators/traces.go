package generators

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/observelab/meltgen/internal/anomaly"
	"github.com/observelab/meltgen/internal/catalog"
	"github.com/observelab/meltgen/internal/config"
	"github.com/observelab/meltgen/internal/models"
	"github.com/observelab/meltgen/internal/rng"
)

// operations groups span operation names by category; the category decides
// which extra tags a span carries.
var operations = map[string][]string{
	"http_request":       {"GET /users", "POST /orders", "PUT /users/{id}", "DELETE /orders/{id}"},
	"database_query":     {"SELECT users", "UPDATE orders", "INSERT logs", "DELETE sessions"},
	"cache_operation":    {"GET user_cache", "SET order_cache", "DEL session_cache"},
	"message_processing": {"process_order", "send_notification", "update_inventory"},
	"file_operation":     {"read_config", "write_logs", "backup_data"},
	"external_api_call":  {"payment_gateway", "email_service", "analytics_api"},
}

// operationCategories fixes iteration order for deterministic draws.
var operationCategories = []string{
	"http_request", "database_query", "cache_operation",
	"message_processing", "file_operation", "external_api_call",
}

const (
	rootSpanMinMicros = 50_000
	rootSpanMaxMicros = 500_000
	childSpanMinMicro = 1_000
)

// TracesGenerator starts one trace per service per tick and grows it into a
// span tree. Parents are always generated before the children that reference
// them; a missing-span rate deliberately omits some non-root spans while
// their descendants keep the dangling parent id, mimicking instrumentation
// gaps.
type TracesGenerator struct {
	cadence        time.Duration
	cat            *catalog.Catalog
	anomalies      AnomalyQuery
	correlation    *CorrelationTable
	maxDepth       int
	missingRate    float64
	baseErrorRate  float64
	timeoutMicros  int64
	streams        map[string]*rng.Stream
}

// NewTracesGenerator wires a traces generator from the session config.
func NewTracesGenerator(gen config.GenerationConfig, cat *catalog.Catalog, anomalies AnomalyQuery, correlation *CorrelationTable, src *rng.Source) *TracesGenerator {
	streams := make(map[string]*rng.Stream, len(cat.Services()))
	for _, service := range cat.Services() {
		streams[service] = src.Substream("traces/" + service)
	}
	return &TracesGenerator{
		cadence:       gen.TracesFrequency,
		cat:           cat,
		anomalies:     anomalies,
		correlation:   correlation,
		maxDepth:      gen.MaxTraceDepth,
		missingRate:   gen.MissingSpanRate,
		baseErrorRate: gen.ErrorRate,
		timeoutMicros: gen.TimeoutThreshold.Microseconds(),
		streams:       streams,
	}
}

func (g *TracesGenerator) Signal() models.SignalType { return models.SignalTraces }
func (g *TracesGenerator) Cadence() time.Duration    { return g.cadence }

// Produce builds one trace tree per service for this tick.
func (g *TracesGenerator) Produce(now time.Time) []models.Record {
	var out []models.Record
	for _, service := range g.cat.Services() {
		stream := g.streams[service]
		windows := g.anomalies.ActiveWindows(now, service)
		impact := anomaly.TraceImpactFor(windows)
		out = append(out, g.buildTrace(now, service, stream, impact)...)
	}
	return out
}

func (g *TracesGenerator) buildTrace(start time.Time, service string, stream *rng.Stream, impact anomaly.TraceImpact) []models.Record {
	traceID := readID(stream, 8)

	rootDur := int64(stream.LogNormal(11.7, 0.5))
	if rootDur < rootSpanMinMicros {
		rootDur = rootSpanMinMicros
	}
	if rootDur > rootSpanMaxMicros {
		rootDur = rootSpanMaxMicros
	}
	rootDur = int64(float64(rootDur) * impact.DurationScale)

	root := g.newSpan(stream, traceID, "", service, start, rootDur, impact)
	g.correlation.Record(service, TraceRef{TraceID: traceID, SpanID: root.SpanID})

	records := []models.Record{root}
	depth := 1 + stream.IntN(g.maxDepth)
	g.growChildren(&records, stream, traceID, root, depth-1, impact)
	return records
}

// growChildren appends child spans under parent. A dropped span is generated
// (consuming the same draws) but not appended, so its descendants reference
// an id that never reaches the output.
func (g *TracesGenerator) growChildren(records *[]models.Record, stream *rng.Stream, traceID string, parent models.TraceSpan, remainingDepth int, impact anomaly.TraceImpact) {
	if remainingDepth <= 0 {
		return
	}

	parentEnd := parent.StartTime.Add(time.Duration(parent.Duration) * time.Microsecond)
	childStart := parent.StartTime
	dropRate := g.missingRate + impact.DropRate

	childCount := 1 + stream.IntN(3)
	for i := 0; i < childCount; i++ {
		remaining := parentEnd.Sub(childStart).Microseconds()
		if remaining <= childSpanMinMicro {
			return
		}

		maxDur := remaining / 2
		if maxDur < childSpanMinMicro {
			maxDur = childSpanMinMicro
		}
		dur := stream.Int64Range(childSpanMinMicro, maxDur)

		child := g.newSpan(stream, traceID, parent.SpanID, parent.Service, childStart, dur, impact)

		dropped := stream.Float64() < dropRate
		if !dropped {
			*records = append(*records, child)
		}

		if remainingDepth > 1 && stream.Float64() < 0.5 {
			g.growChildren(records, stream, traceID, child, remainingDepth-1, impact)
		}

		childStart = childStart.Add(time.Duration(dur/2) * time.Microsecond)
	}
}

func (g *TracesGenerator) newSpan(stream *rng.Stream, traceID, parentID, service string, start time.Time, duration int64, impact anomaly.TraceImpact) models.TraceSpan {
	category := operationCategories[stream.IntN(len(operationCategories))]
	names := operations[category]
	opName := names[stream.IntN(len(names))]

	status := models.StatusOK
	errorProb := g.baseErrorRate
	if impact.ErrorProb > errorProb {
		errorProb = impact.ErrorProb
	}
	if stream.Float64() < errorProb {
		status = models.StatusError
	}
	if impact.LatencyActive && duration > g.timeoutMicros {
		status = models.StatusTimeout
	}

	hosts := g.cat.HostsFor(service)
	envs := g.cat.EnvironmentsFor(service)

	tags := map[string]string{
		"service.name":    service,
		"service.version": version(stream),
		"environment":     envs[stream.IntN(len(envs))],
		"host.name":       hosts[stream.IntN(len(hosts))],
	}
	switch category {
	case "http_request":
		parts := strings.SplitN(opName, " ", 2)
		tags["http.method"] = parts[0]
		tags["http.url"] = "https://api.example.com" + parts[1]
		if status == models.StatusError {
			tags["http.status_code"] = "500"
		} else {
			tags["http.status_code"] = "200"
		}
	case "database_query":
		dbs := []string{"postgresql", "mysql", "redis"}
		tags["db.type"] = dbs[stream.IntN(len(dbs))]
		tags["db.statement"] = opName
		tags["db.instance"] = "primary"
	case "cache_operation":
		tags["cache.type"] = "redis"
		parts := strings.SplitN(opName, " ", 2)
		if len(parts) == 2 {
			tags["cache.key"] = parts[1]
		}
	}

	return models.TraceSpan{
		TraceID:       traceID,
		SpanID:        readID(stream, 4),
		ParentSpanID:  parentID,
		OperationName: opName,
		StartTime:     start,
		Duration:      duration,
		Service:       service,
		Tags:          tags,
		Status:        status,
	}
}

// readID mints n deterministic bytes of UUID material and returns them as
// hex: 8 bytes for trace ids, 4 for span ids.
func readID(stream *rng.Stream, n int) string {
	u, err := uuid.NewRandomFromReader(stream)
	if err != nil {
		// The stream reader never fails; fall back to raw hex anyway.
		return stream.Hex(2 * n)
	}
	return hex.EncodeToString(u[:n])
}
