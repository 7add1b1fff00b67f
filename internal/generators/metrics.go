package generators

import (
	"math"
	"time"

	"github.com/observelab/meltgen/internal/anomaly"
	"github.com/observelab/meltgen/internal/catalog"
	"github.com/observelab/meltgen/internal/config"
	"github.com/observelab/meltgen/internal/models"
	"github.com/observelab/meltgen/internal/rng"
)

// metricType describes one synthetic time series family: its unit and the
// band normal values fall in.
type metricType struct {
	name      string
	unit      string
	min       float64
	normalMax float64
}

// metricTypes is the fixed set of series every (service, host) pair reports.
var metricTypes = []metricType{
	{"cpu_usage", "percent", 5, 80},
	{"memory_usage", "percent", 10, 75},
	{"disk_usage", "percent", 20, 85},
	{"response_time", "ms", 10, 200},
	{"request_rate", "req/s", 1, 100},
	{"error_rate", "percent", 0, 5},
}

// MetricsGenerator emits one record per (service, host, metric type) per
// tick. Each (service, host) entity owns its own substream.
type MetricsGenerator struct {
	cadence   time.Duration
	cat       *catalog.Catalog
	anomalies AnomalyQuery
	streams   map[string]*rng.Stream
}

// NewMetricsGenerator wires a metrics generator from the session config.
func NewMetricsGenerator(gen config.GenerationConfig, cat *catalog.Catalog, anomalies AnomalyQuery, src *rng.Source) *MetricsGenerator {
	streams := make(map[string]*rng.Stream)
	for _, service := range cat.Services() {
		for _, host := range cat.HostsFor(service) {
			key := service + "/" + host
			streams[key] = src.Substream("metrics/" + key)
		}
	}
	return &MetricsGenerator{
		cadence:   gen.MetricsFrequency,
		cat:       cat,
		anomalies: anomalies,
		streams:   streams,
	}
}

func (g *MetricsGenerator) Signal() models.SignalType { return models.SignalMetrics }
func (g *MetricsGenerator) Cadence() time.Duration    { return g.cadence }

// Produce emits the full (service, host, metric type) grid for this tick.
func (g *MetricsGenerator) Produce(now time.Time) []models.Record {
	var out []models.Record
	for _, service := range g.cat.Services() {
		windows := g.anomalies.ActiveWindows(now, service)
		for _, host := range g.cat.HostsFor(service) {
			stream := g.streams[service+"/"+host]
			for _, mt := range metricTypes {
				base := stream.Range(mt.min, mt.normalMax)
				noise := stream.Range(-0.1, 0.1) * base
				base = math.Max(mt.min, base+noise)

				value, anomalous := anomaly.PerturbMetric(windows, mt.name, base)

				envs := g.cat.EnvironmentsFor(service)
				env := envs[stream.IntN(len(envs))]

				out = append(out, models.Metric{
					Timestamp:  now,
					MetricName: mt.name,
					Value:      round2(value),
					Labels: map[string]string{
						"service":     service,
						"host":        host,
						"environment": env,
						"unit":        mt.unit,
					},
					Anomaly: anomalous,
				})
			}
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
