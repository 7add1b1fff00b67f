package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meltgen",
			Name:      "records_total",
			Help:      "Total records generated, partitioned by signal type.",
		},
		[]string{"signal"},
	)

	batchesFlushedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meltgen",
			Name:      "batches_flushed_total",
			Help:      "Total sink batches flushed.",
		},
	)

	activeAnomalyWindows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "meltgen",
			Name:      "active_anomaly_windows",
			Help:      "Anomaly windows currently open in the running session.",
		},
	)

	sessionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "meltgen",
			Name:      "session_seconds",
			Help:      "Wall-clock duration of completed generation sessions.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
	)
)

// Register attaches meltgen collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		recordsTotal,
		batchesFlushedTotal,
		activeAnomalyWindows,
		sessionDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRecord counts one generated record.
func ObserveRecord(signal string) {
	recordsTotal.WithLabelValues(signal).Inc()
}

// ObserveBatchFlush counts one sink batch flush.
func ObserveBatchFlush() {
	batchesFlushedTotal.Inc()
}

// SetActiveWindows records the current open anomaly window count.
func SetActiveWindows(n int) {
	activeAnomalyWindows.Set(float64(n))
}

// ObserveSession records a completed session's wall-clock duration.
func ObserveSession(d time.Duration) {
	if d < 0 {
		d = 0
	}
	sessionDurationSeconds.Observe(d.Seconds())
}
