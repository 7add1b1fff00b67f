package generators

import (
	"reflect"
	"testing"
	"time"

	"github.com/observelab/meltgen/internal/anomaly"
	"github.com/observelab/meltgen/internal/models"
	"github.com/observelab/meltgen/internal/rng"
)

func TestMetricsGridPerTick(t *testing.T) {
	gen := testGenConfig()
	cat := testCatalog(t, gen)
	g := NewMetricsGenerator(gen, cat, stubAnomalies{}, rng.New(gen.Seed))

	records := g.Produce(sessionStart)
	want := len(gen.Services) * len(gen.Hosts) * len(metricTypes)
	if len(records) != want {
		t.Fatalf("Produce emitted %d records, want %d", len(records), want)
	}

	for _, rec := range records {
		m, ok := rec.(models.Metric)
		if !ok {
			t.Fatalf("record type %T, want Metric", rec)
		}
		if !m.Timestamp.Equal(sessionStart) {
			t.Fatalf("timestamp = %v, want tick instant", m.Timestamp)
		}
		if m.Anomaly {
			t.Fatalf("metric %s flagged anomalous without windows", m.MetricName)
		}
		for _, key := range []string{"service", "host", "environment", "unit"} {
			if m.Labels[key] == "" {
				t.Fatalf("metric %s missing label %q", m.MetricName, key)
			}
		}
		if m.Value < 0 {
			t.Fatalf("metric %s value %v negative", m.MetricName, m.Value)
		}
		if m.Labels["unit"] == "percent" && m.Value > 100 {
			t.Fatalf("percent metric %s = %v exceeds 100", m.MetricName, m.Value)
		}
	}
}

func TestMetricsDeterministic(t *testing.T) {
	gen := testGenConfig()
	cat := testCatalog(t, gen)

	run := func() []models.Record {
		g := NewMetricsGenerator(gen, cat, stubAnomalies{}, rng.New(gen.Seed))
		var all []models.Record
		for i := 0; i < 5; i++ {
			all = append(all, g.Produce(sessionStart.Add(time.Duration(i)*gen.MetricsFrequency))...)
		}
		return all
	}

	if !reflect.DeepEqual(run(), run()) {
		t.Fatal("identical seeds produced different metric streams")
	}
}

func TestMetricsCPUSpikeBand(t *testing.T) {
	gen := testGenConfig()
	cat := testCatalog(t, gen)
	windows := stubAnomalies{windows: []*anomaly.Window{coveringWindow(anomaly.KindCPUSpike, "api", 3)}}
	g := NewMetricsGenerator(gen, cat, windows, rng.New(gen.Seed))

	records := g.Produce(sessionStart)
	var checked int
	for _, rec := range records {
		m := rec.(models.Metric)
		if m.MetricName != "cpu_usage" {
			continue
		}
		switch m.Labels["service"] {
		case "api":
			checked++
			if m.Value < 80 || m.Value > 95 {
				t.Fatalf("spiked cpu_usage = %v, want within [80, 95]", m.Value)
			}
			if !m.Anomaly {
				t.Fatal("spiked cpu_usage not flagged anomalous")
			}
		case "web":
			if m.Anomaly {
				t.Fatal("cpu_usage for uncovered service flagged anomalous")
			}
		}
	}
	if checked == 0 {
		t.Fatal("no cpu_usage records for the covered service")
	}
}

func TestMetricsAnomalyFlagScopedToTargetedSeries(t *testing.T) {
	gen := testGenConfig()
	cat := testCatalog(t, gen)
	windows := stubAnomalies{windows: []*anomaly.Window{coveringWindow(anomaly.KindLatencySpike, "api", 4)}}
	g := NewMetricsGenerator(gen, cat, windows, rng.New(gen.Seed))

	for _, rec := range g.Produce(sessionStart) {
		m := rec.(models.Metric)
		if m.Labels["service"] != "api" {
			continue
		}
		wantFlag := m.MetricName == "response_time"
		if m.Anomaly != wantFlag {
			t.Fatalf("metric %s anomaly flag = %v, want %v under latency spike", m.MetricName, m.Anomaly, wantFlag)
		}
	}
}
