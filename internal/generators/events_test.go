package generators

import (
	"reflect"
	"testing"
	"time"

	"github.com/observelab/meltgen/internal/anomaly"
	"github.com/observelab/meltgen/internal/models"
	"github.com/observelab/meltgen/internal/rng"
)

const eventsBucket = time.Second

func TestEventsOnsetForNewWindows(t *testing.T) {
	tests := []struct {
		name         string
		kind         anomaly.Kind
		wantType     string
		wantSeverity models.EventSeverity
	}{
		{"outage incident", anomaly.KindServiceOutage, "incident", models.SeverityCritical},
		{"burst incident", anomaly.KindErrorBurst, "incident", models.SeverityError},
		{"cpu alert", anomaly.KindCPUSpike, "alert", models.SeverityError},
		{"latency alert", anomaly.KindLatencySpike, "alert", models.SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := testGenConfig()
			cat := testCatalog(t, gen)
			w := coveringWindow(tt.kind, "api", 2)
			g := NewEventsGenerator(gen, eventsBucket, cat, stubAnomalies{windows: []*anomaly.Window{w}}, rng.New(gen.Seed))

			records := g.Produce(sessionStart)
			if len(records) == 0 {
				t.Fatal("no onset event at window start")
			}
			e := records[0].(models.Event)
			if e.EventType != tt.wantType {
				t.Fatalf("event type = %s, want %s", e.EventType, tt.wantType)
			}
			if e.Severity != tt.wantSeverity {
				t.Fatalf("severity = %s, want %s", e.Severity, tt.wantSeverity)
			}
			if e.Source != "monitoring-system" {
				t.Fatalf("source = %s, want monitoring-system", e.Source)
			}
			if e.Metadata["service"] != "api" {
				t.Fatalf("onset event metadata service = %q, want api", e.Metadata["service"])
			}
		})
	}
}

func TestEventsNoOnsetAfterWindowStart(t *testing.T) {
	gen := testGenConfig()
	gen.EventsFrequency = 24 * time.Hour // keep routine arrivals out of the way
	cat := testCatalog(t, gen)
	w := coveringWindow(anomaly.KindServiceOutage, "api", 1)
	g := NewEventsGenerator(gen, eventsBucket, cat, stubAnomalies{windows: []*anomaly.Window{w}}, rng.New(gen.Seed))

	for _, rec := range g.Produce(sessionStart.Add(eventsBucket)) {
		e := rec.(models.Event)
		if e.EventType == "incident" && e.Severity == models.SeverityCritical {
			t.Fatal("onset event re-emitted after the window's start bucket")
		}
	}
}

func TestEventsRoutineArrivals(t *testing.T) {
	gen := testGenConfig()
	gen.EventsFrequency = 10 * time.Second // mean arrival gap
	cat := testCatalog(t, gen)
	g := NewEventsGenerator(gen, eventsBucket, cat, stubAnomalies{}, rng.New(gen.Seed))

	var events []models.Event
	for i := 0; i < 600; i++ {
		now := sessionStart.Add(time.Duration(i) * eventsBucket)
		for _, rec := range g.Produce(now) {
			e := rec.(models.Event)
			if !e.Timestamp.Equal(now) {
				t.Fatalf("event timestamp %v not snapped to tick %v", e.Timestamp, now)
			}
			events = append(events, e)
		}
	}

	// 600 seconds at a 10s mean gap: the count should sit near 60.
	if len(events) < 30 || len(events) > 120 {
		t.Fatalf("got %d routine events over 10 minutes, want near 60", len(events))
	}

	for _, e := range events {
		if e.EventType == "" || e.Message == "" || e.Source == "" {
			t.Fatalf("incomplete event: %+v", e)
		}
		for _, key := range []string{"service", "host", "environment", "event_id", "correlation_id"} {
			if e.Metadata[key] == "" {
				t.Fatalf("event missing metadata %q", key)
			}
		}
	}
}

func TestEventsDeterministic(t *testing.T) {
	gen := testGenConfig()
	gen.EventsFrequency = 5 * time.Second
	cat := testCatalog(t, gen)

	run := func() []models.Record {
		g := NewEventsGenerator(gen, eventsBucket, cat, stubAnomalies{}, rng.New(gen.Seed))
		var all []models.Record
		for i := 0; i < 300; i++ {
			all = append(all, g.Produce(sessionStart.Add(time.Duration(i)*eventsBucket))...)
		}
		return all
	}

	if !reflect.DeepEqual(run(), run()) {
		t.Fatal("identical seeds produced different event streams")
	}
}
