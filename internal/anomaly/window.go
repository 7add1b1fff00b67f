// Package anomaly decides when correlated anomaly windows open, answers
// coverage queries for the signal generators, and defines how each window
// kind perturbs generated values.
package anomaly

import (
	"fmt"
	"time"
)

// Kind identifies one anomaly behaviour.
type Kind string

const (
	KindCPUSpike      Kind = "cpu_spike"
	KindServiceOutage Kind = "service_outage"
	KindLatencySpike  Kind = "latency_spike"
	KindErrorBurst    Kind = "error_burst"
)

// Kinds lists every supported kind in trigger evaluation order.
var Kinds = []Kind{KindCPUSpike, KindServiceOutage, KindLatencySpike, KindErrorBurst}

// ParseKinds converts a list of kind names to Kinds. "all" expands to every
// kind; an unknown name is a configuration error.
func ParseKinds(names []string) ([]Kind, error) {
	seen := make(map[Kind]struct{}, len(names))
	out := make([]Kind, 0, len(names))

	add := func(k Kind) {
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}

	for _, name := range names {
		switch Kind(name) {
		case KindCPUSpike, KindServiceOutage, KindLatencySpike, KindErrorBurst:
			add(Kind(name))
		default:
			if name == "all" {
				for _, k := range Kinds {
					add(k)
				}
				continue
			}
			return nil, fmt.Errorf("unknown anomaly kind %q", name)
		}
	}
	return out, nil
}

// Window is one bounded perturbation interval. Windows are immutable once
// created and discarded after their end time passes.
type Window struct {
	Kind      Kind
	Services  []string // primary service first; outages append cascaded dependents
	Start     time.Time
	Duration  time.Duration
	Intensity float64

	// SpanDropRate applies to service_outage windows only.
	SpanDropRate float64
	// BurstErrorRate applies to error_burst windows only.
	BurstErrorRate float64
}

// End returns the instant the window closes.
func (w *Window) End() time.Time { return w.Start.Add(w.Duration) }

// Covers reports whether the window is active for the service at the given
// instant.
func (w *Window) Covers(now time.Time, service string) bool {
	if now.Before(w.Start) || !now.Before(w.End()) {
		return false
	}
	for _, svc := range w.Services {
		if svc == service {
			return true
		}
	}
	return false
}

// Primary returns the service the trigger fired for.
func (w *Window) Primary() string {
	if len(w.Services) == 0 {
		return ""
	}
	return w.Services[0]
}
