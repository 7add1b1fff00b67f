// Package validation checks generated output: per-line schema validation of
// the NDJSON streams, plus statistical checks that the anomaly injection
// actually shows up in the data.
package validation

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/observelab/meltgen/internal/models"
)

// Report summarises validation of one stream.
type Report struct {
	Signal      models.SignalType `json:"signal"`
	RecordCount int               `json:"record_count"`
	Valid       bool              `json:"valid"`
	Errors      []LineError       `json:"errors,omitempty"`
}

// LineError pins a validation failure to its line.
type LineError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// maxReportedErrors caps the error list so a corrupt multi-gigabyte stream
// does not balloon the report.
const maxReportedErrors = 100

// ValidateStream checks every NDJSON line of one signal stream.
func ValidateStream(r io.Reader, signal models.SignalType) (Report, error) {
	report := Report{Signal: signal, Valid: true}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		report.RecordCount++
		if err := validateLine(raw, signal); err != nil {
			report.Valid = false
			if len(report.Errors) < maxReportedErrors {
				report.Errors = append(report.Errors, LineError{Line: line, Err: err.Error()})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("read %s stream: %w", signal, err)
	}
	return report, nil
}

func validateLine(raw []byte, signal models.SignalType) error {
	switch signal {
	case models.SignalMetrics:
		var m models.Metric
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		return validateMetric(m)
	case models.SignalEvents:
		var e models.Event
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		return validateEvent(e)
	case models.SignalLogs:
		var l models.Log
		if err := json.Unmarshal(raw, &l); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		return validateLog(l)
	case models.SignalTraces:
		var t models.TraceSpan
		if err := json.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		return validateSpan(t)
	}
	return fmt.Errorf("unknown signal type %q", signal)
}

func validateMetric(m models.Metric) error {
	if m.Timestamp.IsZero() {
		return fmt.Errorf("missing timestamp")
	}
	if m.MetricName == "" {
		return fmt.Errorf("missing metric_name")
	}
	for _, key := range []string{"service", "host", "environment", "unit"} {
		if m.Labels[key] == "" {
			return fmt.Errorf("missing label %q", key)
		}
	}
	return nil
}

func validateEvent(e models.Event) error {
	if e.Timestamp.IsZero() {
		return fmt.Errorf("missing timestamp")
	}
	if e.EventType == "" {
		return fmt.Errorf("missing event_type")
	}
	switch e.Severity {
	case models.SeverityDebug, models.SeverityInfo, models.SeverityWarn, models.SeverityError, models.SeverityCritical:
	default:
		return fmt.Errorf("invalid severity %q", e.Severity)
	}
	if e.Source == "" {
		return fmt.Errorf("missing source")
	}
	if e.Message == "" {
		return fmt.Errorf("missing message")
	}
	for _, key := range []string{"service", "host", "environment", "event_id"} {
		if e.Metadata[key] == "" {
			return fmt.Errorf("missing metadata %q", key)
		}
	}
	return nil
}

func validateLog(l models.Log) error {
	if l.Timestamp.IsZero() {
		return fmt.Errorf("missing timestamp")
	}
	switch l.Level {
	case models.LevelDebug, models.LevelInfo, models.LevelWarn, models.LevelError, models.LevelCritical:
	default:
		return fmt.Errorf("invalid level %q", l.Level)
	}
	if l.Service == "" {
		return fmt.Errorf("missing service")
	}
	if l.Message == "" {
		return fmt.Errorf("missing message")
	}
	return nil
}

func validateSpan(t models.TraceSpan) error {
	if t.TraceID == "" {
		return fmt.Errorf("missing trace_id")
	}
	if t.SpanID == "" {
		return fmt.Errorf("missing span_id")
	}
	if t.OperationName == "" {
		return fmt.Errorf("missing operation_name")
	}
	if t.StartTime.IsZero() {
		return fmt.Errorf("missing start_time")
	}
	if t.Duration < 0 {
		return fmt.Errorf("negative duration")
	}
	if t.Service == "" {
		return fmt.Errorf("missing service")
	}
	switch t.Status {
	case models.StatusOK, models.StatusError, models.StatusTimeout:
	default:
		return fmt.Errorf("invalid status %q", t.Status)
	}
	return nil
}

// CheckOrdering verifies non-decreasing timestamps across an already-decoded
// record sequence, the ordering guarantee the scheduler makes to consumers.
func CheckOrdering(times []time.Time) error {
	for i := 1; i < len(times); i++ {
		if times[i].Before(times[i-1]) {
			return fmt.Errorf("timestamp regression at index %d: %s < %s", i, times[i], times[i-1])
		}
	}
	return nil
}
