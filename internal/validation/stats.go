package validation

import (
	"math"
	"time"

	"github.com/observelab/meltgen/internal/models"
)

// Outlier is a metric sample whose value deviates significantly from the
// series mean.
type Outlier struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Value     float64   `json:"value"`
	ZScore    float64   `json:"z_score"`
}

// DetectOutliers flags samples whose z-score against the whole series exceeds
// threshold. Series shorter than three samples carry no usable variance.
func DetectOutliers(series []models.Metric, threshold float64) []Outlier {
	if len(series) < 3 {
		return nil
	}

	var sum float64
	for _, m := range series {
		sum += m.Value
	}
	mean := sum / float64(len(series))

	var variance float64
	for _, m := range series {
		d := m.Value - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(len(series)))
	if stddev == 0 {
		return nil
	}

	var out []Outlier
	for i, m := range series {
		z := (m.Value - mean) / stddev
		if math.Abs(z) >= threshold {
			out = append(out, Outlier{
				Index:     i,
				Timestamp: m.Timestamp,
				Service:   m.Labels["service"],
				Value:     m.Value,
				ZScore:    z,
			})
		}
	}
	return out
}

// ErrorLogFraction reports the share of ERROR and CRITICAL entries among the
// given service's logs inside [from, to). A zero denominator yields zero.
func ErrorLogFraction(logs []models.Log, service string, from, to time.Time) float64 {
	var total, errors int
	for _, l := range logs {
		if l.Service != service {
			continue
		}
		if l.Timestamp.Before(from) || !l.Timestamp.Before(to) {
			continue
		}
		total++
		if l.Level == models.LevelError || l.Level == models.LevelCritical {
			errors++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(errors) / float64(total)
}

// FlaggedConsistency verifies that every metric marked anomalous deviates
// from the unflagged samples of the same metric name and service. It returns
// the flagged samples that sit inside the benign range, which a correct
// injection should leave empty.
func FlaggedConsistency(series []models.Metric) []Outlier {
	type key struct{ name, service string }

	benignMin := make(map[key]float64)
	benignMax := make(map[key]float64)
	seen := make(map[key]bool)
	for _, m := range series {
		if m.Anomaly {
			continue
		}
		k := key{m.MetricName, m.Labels["service"]}
		if !seen[k] || m.Value < benignMin[k] {
			benignMin[k] = m.Value
		}
		if !seen[k] || m.Value > benignMax[k] {
			benignMax[k] = m.Value
		}
		seen[k] = true
	}

	var suspect []Outlier
	for i, m := range series {
		if !m.Anomaly {
			continue
		}
		k := key{m.MetricName, m.Labels["service"]}
		if !seen[k] {
			continue
		}
		if m.Value >= benignMin[k] && m.Value <= benignMax[k] {
			suspect = append(suspect, Outlier{
				Index:     i,
				Timestamp: m.Timestamp,
				Service:   m.Labels["service"],
				Value:     m.Value,
			})
		}
	}
	return suspect
}
