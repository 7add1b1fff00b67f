package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/observelab/meltgen/internal/models"
)

func TestValidateStreamMetrics(t *testing.T) {
	good := `{"timestamp":"2025-06-01T12:00:00Z","metric_name":"cpu_usage","value":42.5,"labels":{"service":"api","host":"h1","environment":"production","unit":"percent"},"anomaly":false}`
	missingLabel := `{"timestamp":"2025-06-01T12:00:00Z","metric_name":"cpu_usage","value":42.5,"labels":{"service":"api"},"anomaly":false}`
	badJSON := `{"timestamp":`

	report, err := ValidateStream(strings.NewReader(good+"\n"+missingLabel+"\n"+badJSON+"\n"), models.SignalMetrics)
	if err != nil {
		t.Fatalf("ValidateStream: %v", err)
	}
	if report.RecordCount != 3 {
		t.Fatalf("RecordCount = %d, want 3", report.RecordCount)
	}
	if report.Valid {
		t.Fatal("report valid despite malformed lines")
	}
	if len(report.Errors) != 2 {
		t.Fatalf("got %d errors, want 2", len(report.Errors))
	}
	if report.Errors[0].Line != 2 || report.Errors[1].Line != 3 {
		t.Fatalf("error lines = %d, %d", report.Errors[0].Line, report.Errors[1].Line)
	}
}

func TestValidateStreamAllSignals(t *testing.T) {
	tests := []struct {
		signal models.SignalType
		good   string
		bad    string
	}{
		{
			models.SignalEvents,
			`{"timestamp":"2025-06-01T12:00:00Z","event_type":"deployment","severity":"info","source":"ci-cd-pipeline","message":"deployed","metadata":{"service":"api","host":"h1","environment":"production","event_id":"evt_1"}}`,
			`{"timestamp":"2025-06-01T12:00:00Z","event_type":"deployment","severity":"urgent","source":"ci-cd-pipeline","message":"deployed","metadata":{"service":"api","host":"h1","environment":"production","event_id":"evt_1"}}`,
		},
		{
			models.SignalLogs,
			`{"timestamp":"2025-06-01T12:00:00Z","level":"INFO","service":"api","message":"ok","metadata":{}}`,
			`{"timestamp":"2025-06-01T12:00:00Z","level":"TRACE","service":"api","message":"ok","metadata":{}}`,
		},
		{
			models.SignalTraces,
			`{"trace_id":"00112233445566778899aabbccddeeff","span_id":"00112233","operation_name":"GET /users","start_time":"2025-06-01T12:00:00Z","duration":1200,"service":"api","tags":{},"status":"ok"}`,
			`{"trace_id":"00112233445566778899aabbccddeeff","span_id":"00112233","operation_name":"GET /users","start_time":"2025-06-01T12:00:00Z","duration":-5,"service":"api","tags":{},"status":"ok"}`,
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.signal), func(t *testing.T) {
			report, err := ValidateStream(strings.NewReader(tt.good+"\n"), tt.signal)
			if err != nil {
				t.Fatalf("ValidateStream: %v", err)
			}
			if !report.Valid {
				t.Fatalf("good line rejected: %+v", report.Errors)
			}

			report, err = ValidateStream(strings.NewReader(tt.bad+"\n"), tt.signal)
			if err != nil {
				t.Fatalf("ValidateStream: %v", err)
			}
			if report.Valid {
				t.Fatal("bad line accepted")
			}
		})
	}
}

func TestDetectOutliers(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mk := func(v float64) models.Metric {
		return models.Metric{Timestamp: at, MetricName: "cpu_usage", Value: v, Labels: map[string]string{"service": "api"}}
	}

	series := []models.Metric{mk(50), mk(51), mk(49), mk(50), mk(52), mk(48), mk(50), mk(95)}
	outliers := DetectOutliers(series, 2)
	if len(outliers) != 1 {
		t.Fatalf("got %d outliers, want 1", len(outliers))
	}
	if outliers[0].Index != 7 || outliers[0].Value != 95 {
		t.Fatalf("outlier = %+v", outliers[0])
	}
	if outliers[0].ZScore < 2 {
		t.Fatalf("z-score = %v, want >= threshold", outliers[0].ZScore)
	}

	if got := DetectOutliers(series[:2], 2); got != nil {
		t.Fatalf("short series produced outliers: %v", got)
	}
	flat := []models.Metric{mk(50), mk(50), mk(50), mk(50)}
	if got := DetectOutliers(flat, 2); got != nil {
		t.Fatalf("zero-variance series produced outliers: %v", got)
	}
}

func TestErrorLogFraction(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mk := func(offset time.Duration, service string, level models.LogLevel) models.Log {
		return models.Log{Timestamp: at.Add(offset), Service: service, Level: level, Message: "x"}
	}

	logs := []models.Log{
		mk(0, "api", models.LevelInfo),
		mk(time.Second, "api", models.LevelError),
		mk(2*time.Second, "api", models.LevelCritical),
		mk(3*time.Second, "web", models.LevelError), // other service
		mk(time.Minute, "api", models.LevelError),   // outside window
	}

	got := ErrorLogFraction(logs, "api", at, at.Add(10*time.Second))
	if want := 2.0 / 3.0; got != want {
		t.Fatalf("ErrorLogFraction = %v, want %v", got, want)
	}
	if got := ErrorLogFraction(logs, "ghost", at, at.Add(10*time.Second)); got != 0 {
		t.Fatalf("fraction for absent service = %v, want 0", got)
	}
}

func TestFlaggedConsistency(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mk := func(v float64, anomalous bool) models.Metric {
		return models.Metric{
			Timestamp:  at,
			MetricName: "cpu_usage",
			Value:      v,
			Labels:     map[string]string{"service": "api"},
			Anomaly:    anomalous,
		}
	}

	series := []models.Metric{
		mk(40, false), mk(50, false), mk(60, false),
		mk(90, true), // genuinely outside the benign range
	}
	if suspects := FlaggedConsistency(series); len(suspects) != 0 {
		t.Fatalf("consistent series flagged suspects: %+v", suspects)
	}

	series = append(series, mk(45, true)) // flagged but inside benign range
	suspects := FlaggedConsistency(series)
	if len(suspects) != 1 || suspects[0].Value != 45 {
		t.Fatalf("suspects = %+v, want the in-range flagged sample", suspects)
	}
}

func TestCheckOrdering(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ordered := []time.Time{at, at, at.Add(time.Second), at.Add(2 * time.Second)}
	if err := CheckOrdering(ordered); err != nil {
		t.Fatalf("CheckOrdering(ordered): %v", err)
	}

	regressed := []time.Time{at, at.Add(time.Second), at}
	if err := CheckOrdering(regressed); err == nil {
		t.Fatal("CheckOrdering accepted a timestamp regression")
	}
}
