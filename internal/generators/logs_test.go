package generators

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/observelab/meltgen/internal/anomaly"
	"github.com/observelab/meltgen/internal/models"
	"github.com/observelab/meltgen/internal/rng"
)

func TestLogsOnePerService(t *testing.T) {
	gen := testGenConfig()
	cat := testCatalog(t, gen)
	g := NewLogsGenerator(gen, cat, stubAnomalies{}, NewCorrelationTable(), rng.New(gen.Seed))

	records := g.Produce(sessionStart)
	if len(records) != len(gen.Services) {
		t.Fatalf("Produce emitted %d records, want one per service", len(records))
	}

	seen := map[string]bool{}
	for _, rec := range records {
		l, ok := rec.(models.Log)
		if !ok {
			t.Fatalf("record type %T, want Log", rec)
		}
		seen[l.Service] = true
		if l.Message == "" {
			t.Fatal("empty log message")
		}
		if strings.Contains(l.Message, "{") {
			t.Fatalf("unfilled template placeholder in %q", l.Message)
		}
		for _, key := range []string{"service", "host", "environment", "version", "thread_id", "process_id"} {
			if l.Metadata[key] == "" {
				t.Fatalf("log missing metadata %q", key)
			}
		}
	}
	for _, service := range gen.Services {
		if !seen[service] {
			t.Fatalf("no log line for service %s", service)
		}
	}
}

func TestLogsDeterministic(t *testing.T) {
	gen := testGenConfig()
	cat := testCatalog(t, gen)

	run := func() []models.Record {
		g := NewLogsGenerator(gen, cat, stubAnomalies{}, NewCorrelationTable(), rng.New(gen.Seed))
		var all []models.Record
		for i := 0; i < 200; i++ {
			all = append(all, g.Produce(sessionStart.Add(time.Duration(i)*gen.LogsFrequency))...)
		}
		return all
	}

	if !reflect.DeepEqual(run(), run()) {
		t.Fatal("identical seeds produced different log streams")
	}
}

func TestLogsTraceCorrelation(t *testing.T) {
	gen := testGenConfig()
	cat := testCatalog(t, gen)
	table := NewCorrelationTable()
	table.Record("api", TraceRef{TraceID: "feedc0de00000000", SpanID: "deadbeef"})
	g := NewLogsGenerator(gen, cat, stubAnomalies{}, table, rng.New(gen.Seed))

	attached := 0
	total := 0
	for i := 0; i < 500; i++ {
		for _, rec := range g.Produce(sessionStart.Add(time.Duration(i) * gen.LogsFrequency)) {
			l := rec.(models.Log)
			switch l.Service {
			case "api":
				total++
				if l.TraceID != "" {
					attached++
					if l.TraceID != "feedc0de00000000" || l.SpanID != "deadbeef" {
						t.Fatalf("attached ids %s/%s do not match the recorded reference", l.TraceID, l.SpanID)
					}
				}
			case "web":
				// No trace has been recorded for web; lines must stay bare.
				if l.TraceID != "" || l.SpanID != "" {
					t.Fatalf("log for service without traces carries ids %s/%s", l.TraceID, l.SpanID)
				}
			}
		}
	}

	// Attachment rate is 0.3; over 500 draws the count should land well
	// inside this band.
	if attached < total/5 || attached > total/2 {
		t.Fatalf("attached %d of %d api lines, outside the expected rate band", attached, total)
	}
}

func TestLogsErrorBurstShiftsLevels(t *testing.T) {
	gen := testGenConfig()
	cat := testCatalog(t, gen)
	burst := coveringWindow(anomaly.KindErrorBurst, "api", 1)
	burst.BurstErrorRate = 0.9
	g := NewLogsGenerator(gen, cat, stubAnomalies{windows: []*anomaly.Window{burst}}, NewCorrelationTable(), rng.New(gen.Seed))

	errors := 0
	total := 0
	for i := 0; i < 500; i++ {
		for _, rec := range g.Produce(sessionStart.Add(time.Duration(i) * gen.LogsFrequency)) {
			l := rec.(models.Log)
			if l.Service != "api" {
				continue
			}
			total++
			if l.Level == models.LevelError || l.Level == models.LevelCritical {
				errors++
			}
		}
	}

	if frac := float64(errors) / float64(total); frac < 0.7 {
		t.Fatalf("error-level fraction = %v during burst, want elevated", frac)
	}
}
