package anomaly

import (
	"math"
	"testing"
	"time"
)

func mkWindow(kind Kind, intensity float64) *Window {
	return &Window{
		Kind:      kind,
		Services:  []string{"api"},
		Start:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Duration:  5 * time.Minute,
		Intensity: intensity,
	}
}

func TestPerturbMetric(t *testing.T) {
	outage := mkWindow(KindServiceOutage, 1)
	outage.SpanDropRate = 0.3
	burst := mkWindow(KindErrorBurst, 1)
	burst.BurstErrorRate = 0.5

	tests := []struct {
		name         string
		windows      []*Window
		metric       string
		in           float64
		wantMin      float64
		wantMax      float64
		wantTargeted bool
	}{
		{"no windows", nil, "cpu_usage", 50, 50, 50, false},
		{"cpu spike clamps into band", []*Window{mkWindow(KindCPUSpike, 3)}, "cpu_usage", 20, 80, 95, true},
		{"cpu spike high baseline stays in band", []*Window{mkWindow(KindCPUSpike, 3)}, "cpu_usage", 90, 80, 95, true},
		{"cpu spike scales response time", []*Window{mkWindow(KindCPUSpike, 3)}, "response_time", 100, 300, 300, true},
		{"cpu spike ignores memory", []*Window{mkWindow(KindCPUSpike, 3)}, "memory_usage", 40, 40, 40, false},
		{"outage drops cpu", []*Window{outage}, "cpu_usage", 50, 5, 5, true},
		{"outage scales errors", []*Window{outage}, "error_rate", 2, 20, 20, true},
		{"outage scales response time", []*Window{outage}, "response_time", 100, 2000, 2000, true},
		{"outage error rate capped at 100", []*Window{outage}, "error_rate", 50, 100, 100, true},
		{"latency spike scales response time", []*Window{mkWindow(KindLatencySpike, 5)}, "response_time", 100, 500, 500, true},
		{"latency spike ignores cpu", []*Window{mkWindow(KindLatencySpike, 5)}, "cpu_usage", 50, 50, 50, false},
		{"error burst floors error rate", []*Window{burst}, "error_rate", 1, 50, 50, true},
		{"error burst keeps higher baseline", []*Window{burst}, "error_rate", 70, 70, 70, true},
		{"overlap composes multiplicatively", []*Window{mkWindow(KindLatencySpike, 2), outage}, "response_time", 100, 4000, 4000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, targeted := PerturbMetric(tt.windows, tt.metric, tt.in)
			if got < tt.wantMin-1e-9 || got > tt.wantMax+1e-9 {
				t.Fatalf("PerturbMetric(%s, %v) = %v, want within [%v, %v]", tt.metric, tt.in, got, tt.wantMin, tt.wantMax)
			}
			if targeted != tt.wantTargeted {
				t.Fatalf("PerturbMetric(%s) targeted = %v, want %v", tt.metric, targeted, tt.wantTargeted)
			}
		})
	}
}

func TestLevelWeightsShift(t *testing.T) {
	base := []float64{0.3, 0.4, 0.15, 0.05, 0.005}

	t.Run("no windows returns base", func(t *testing.T) {
		got := LevelWeights(nil, base)
		for i := range base {
			if got[i] != base[i] {
				t.Fatalf("weight %d shifted without windows: %v", i, got)
			}
		}
	})

	baseTotal := 0.0
	for _, w := range base {
		baseTotal += w
	}

	t.Run("outage moves mass to errors", func(t *testing.T) {
		got := LevelWeights([]*Window{mkWindow(KindServiceOutage, 1)}, base)

		for i := 0; i < 3; i++ {
			if want := base[i] * 0.3; math.Abs(got[i]-want) > 1e-9 {
				t.Fatalf("benign weight %d = %v, want %v", i, got[i], want)
			}
		}
		if want := baseTotal * 0.7 * 0.8; math.Abs(got[3]-want) > 1e-9 {
			t.Fatalf("ERROR weight = %v, want %v", got[3], want)
		}
		if want := baseTotal * 0.7 * 0.2; math.Abs(got[4]-want) > 1e-9 {
			t.Fatalf("CRITICAL weight = %v, want %v", got[4], want)
		}
	})

	t.Run("burst uses configured rate", func(t *testing.T) {
		burst := mkWindow(KindErrorBurst, 1)
		burst.BurstErrorRate = 0.5
		got := LevelWeights([]*Window{burst}, base)

		if want := baseTotal * 0.5 * 0.8; math.Abs(got[3]-want) > 1e-9 {
			t.Fatalf("ERROR weight = %v, want %v", got[3], want)
		}
		if want := base[0] * 0.5; math.Abs(got[0]-want) > 1e-9 {
			t.Fatalf("DEBUG weight = %v, want %v", got[0], want)
		}
	})

	t.Run("base is not mutated", func(t *testing.T) {
		before := append([]float64(nil), base...)
		LevelWeights([]*Window{mkWindow(KindServiceOutage, 1)}, base)
		for i := range base {
			if base[i] != before[i] {
				t.Fatal("LevelWeights mutated the base vector")
			}
		}
	})
}

func TestTraceImpactFor(t *testing.T) {
	outage := mkWindow(KindServiceOutage, 1)
	outage.SpanDropRate = 0.3
	burst := mkWindow(KindErrorBurst, 1)
	burst.BurstErrorRate = 0.9
	latency := mkWindow(KindLatencySpike, 4)

	t.Run("empty", func(t *testing.T) {
		impact := TraceImpactFor(nil)
		if impact.DurationScale != 1 || impact.ErrorProb != 0 || impact.DropRate != 0 || impact.LatencyActive {
			t.Fatalf("zero-window impact = %+v", impact)
		}
	})

	t.Run("composed", func(t *testing.T) {
		impact := TraceImpactFor([]*Window{outage, latency, burst})
		if impact.DurationScale != 12 { // 3 from outage, 4 from latency spike
			t.Fatalf("DurationScale = %v, want 12", impact.DurationScale)
		}
		if impact.ErrorProb != 0.9 { // burst rate exceeds outage error prob
			t.Fatalf("ErrorProb = %v, want 0.9", impact.ErrorProb)
		}
		if impact.DropRate != 0.3 {
			t.Fatalf("DropRate = %v, want 0.3", impact.DropRate)
		}
		if !impact.LatencyActive {
			t.Fatal("LatencyActive = false with latency window present")
		}
	})
}

func TestWindowCovers(t *testing.T) {
	w := mkWindow(KindCPUSpike, 2)

	if w.Covers(w.Start.Add(-time.Second), "api") {
		t.Fatal("window covers instant before start")
	}
	if !w.Covers(w.Start, "api") {
		t.Fatal("window does not cover its start instant")
	}
	if w.Covers(w.End(), "api") {
		t.Fatal("window covers its end instant; intervals are half-open")
	}
	if w.Covers(w.Start, "web") {
		t.Fatal("window covers a service outside its set")
	}
}
