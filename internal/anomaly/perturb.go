package anomaly

// Perturbation contracts: how active windows bend generated values. Distinct
// kinds overlapping on the same service compose multiplicatively, then the
// result is clipped to the metric's domain.

// cpu_spike pushes cpu_usage into this absolute utilization band.
const (
	cpuSpikeFloor = 80.0
	cpuSpikeCeil  = 95.0
)

// outage multipliers: near-idle CPU, an order of magnitude more errors, far
// slower responses.
const (
	outageCPUScale      = 0.1
	outageErrorScale    = 10.0
	outageResponseScale = 20.0
	outageTraceScale    = 3.0
	outageErrorProb     = 0.8
	outageLogErrorFrac  = 0.7
)

func isPercentMetric(name string) bool {
	switch name {
	case "cpu_usage", "memory_usage", "disk_usage", "error_rate":
		return true
	}
	return false
}

// PerturbMetric applies every covering window to a metric sample. It returns
// the perturbed value and whether any window targeted this metric name; a
// targeted sample is flagged anomalous even when clamping leaves the value
// near its baseline.
func PerturbMetric(windows []*Window, metricName string, value float64) (float64, bool) {
	if len(windows) == 0 {
		return value, false
	}

	scale := 1.0
	floor, ceil := 0.0, -1.0 // ceil < floor means no band constraint
	errorRateTarget := -1.0
	targeted := false

	for _, w := range windows {
		switch w.Kind {
		case KindCPUSpike:
			switch metricName {
			case "cpu_usage":
				scale *= w.Intensity
				floor, ceil = cpuSpikeFloor, cpuSpikeCeil
				targeted = true
			case "response_time", "error_rate":
				scale *= w.Intensity
				targeted = true
			}
		case KindServiceOutage:
			switch metricName {
			case "cpu_usage":
				scale *= outageCPUScale
				targeted = true
			case "error_rate":
				scale *= outageErrorScale
				targeted = true
			case "response_time":
				scale *= outageResponseScale
				targeted = true
			}
		case KindLatencySpike:
			if metricName == "response_time" {
				scale *= w.Intensity
				targeted = true
			}
		case KindErrorBurst:
			if metricName == "error_rate" {
				if t := w.BurstErrorRate * 100; t > errorRateTarget {
					errorRateTarget = t
				}
				targeted = true
			}
		}
	}

	out := value * scale
	if errorRateTarget >= 0 && out < errorRateTarget {
		out = errorRateTarget
	}
	if ceil >= floor {
		if out < floor {
			out = floor
		}
		if out > ceil {
			out = ceil
		}
	}
	if isPercentMetric(metricName) {
		if out < 0 {
			out = 0
		}
		if out > 100 {
			out = 100
		}
	}
	if out < 0 {
		out = 0
	}
	return out, targeted
}

// LevelWeights shifts a base log-level weight vector (DEBUG..CRITICAL order)
// according to the covering windows. Outages skew hard toward ERROR/CRITICAL;
// error bursts move the error mass toward the configured burst rate.
func LevelWeights(windows []*Window, base []float64) []float64 {
	out := append([]float64(nil), base...)
	if len(out) != 5 || len(windows) == 0 {
		return out
	}

	errorFrac := 0.0
	for _, w := range windows {
		switch w.Kind {
		case KindServiceOutage:
			if outageLogErrorFrac > errorFrac {
				errorFrac = outageLogErrorFrac
			}
		case KindErrorBurst:
			if w.BurstErrorRate > errorFrac {
				errorFrac = w.BurstErrorRate
			}
		}
	}
	if errorFrac <= 0 {
		return out
	}

	total := 0.0
	for _, w := range out {
		total += w
	}
	if total <= 0 {
		total = 1
	}

	// errorFrac of the mass goes to ERROR/CRITICAL (4:1 split), the rest is
	// scaled down proportionally across the benign levels.
	benignScale := 1 - errorFrac
	for i := 0; i < 3; i++ {
		out[i] *= benignScale
	}
	out[3] = total * errorFrac * 0.8
	out[4] = total * errorFrac * 0.2
	return out
}

// TraceImpact summarises how covering windows affect span generation.
type TraceImpact struct {
	DurationScale float64 // multiplied into every span duration
	ErrorProb     float64 // elevated probability of status=error
	DropRate      float64 // extra missing-span probability
	LatencyActive bool    // a latency window covers this trace; timeouts apply
}

// TraceImpactFor composes the covering windows into a single impact.
func TraceImpactFor(windows []*Window) TraceImpact {
	impact := TraceImpact{DurationScale: 1}
	for _, w := range windows {
		switch w.Kind {
		case KindServiceOutage:
			impact.DurationScale *= outageTraceScale
			if outageErrorProb > impact.ErrorProb {
				impact.ErrorProb = outageErrorProb
			}
			if w.SpanDropRate > impact.DropRate {
				impact.DropRate = w.SpanDropRate
			}
		case KindLatencySpike:
			impact.DurationScale *= w.Intensity
			impact.LatencyActive = true
		case KindErrorBurst:
			if w.BurstErrorRate > impact.ErrorProb {
				impact.ErrorProb = w.BurstErrorRate
			}
		}
	}
	return impact
}
