package models

import "time"

// SignalType enumerates the four MELT signal categories.
type SignalType string

const (
	SignalMetrics SignalType = "metrics"
	SignalEvents  SignalType = "events"
	SignalLogs    SignalType = "logs"
	SignalTraces  SignalType = "traces"
)

// SignalTypes lists all signal types in merge tie-break priority order.
var SignalTypes = []SignalType{SignalMetrics, SignalEvents, SignalLogs, SignalTraces}

// MergePriority returns the tie-break rank used when two records share a
// timestamp: metrics before events before logs before traces.
func (s SignalType) MergePriority() int {
	switch s {
	case SignalMetrics:
		return 0
	case SignalEvents:
		return 1
	case SignalLogs:
		return 2
	case SignalTraces:
		return 3
	}
	return 4
}

// Record is the variant emitted by every signal generator.
type Record interface {
	Signal() SignalType
	Time() time.Time
}

// LogLevel captures log severity in upper-case wire form.
type LogLevel string

const (
	LevelDebug    LogLevel = "DEBUG"
	LevelInfo     LogLevel = "INFO"
	LevelWarn     LogLevel = "WARN"
	LevelError    LogLevel = "ERROR"
	LevelCritical LogLevel = "CRITICAL"
)

// LogLevels lists levels in ascending severity order. Weighted draws index
// into this slice.
var LogLevels = []LogLevel{LevelDebug, LevelInfo, LevelWarn, LevelError, LevelCritical}

// EventSeverity captures event severity in lower-case wire form.
type EventSeverity string

const (
	SeverityDebug    EventSeverity = "debug"
	SeverityInfo     EventSeverity = "info"
	SeverityWarn     EventSeverity = "warn"
	SeverityError    EventSeverity = "error"
	SeverityCritical EventSeverity = "critical"
)

// EventSeverities lists severities in ascending order for weighted draws.
var EventSeverities = []EventSeverity{SeverityDebug, SeverityInfo, SeverityWarn, SeverityError, SeverityCritical}

// TraceStatus captures span outcome.
type TraceStatus string

const (
	StatusOK      TraceStatus = "ok"
	StatusError   TraceStatus = "error"
	StatusTimeout TraceStatus = "timeout"
)

// Metric is a single time-series sample.
type Metric struct {
	Timestamp  time.Time         `json:"timestamp"`
	MetricName string            `json:"metric_name"`
	Value      float64           `json:"value"`
	Labels     map[string]string `json:"labels"`
	Anomaly    bool              `json:"anomaly"`
}

func (m Metric) Signal() SignalType { return SignalMetrics }
func (m Metric) Time() time.Time    { return m.Timestamp }

// Event is an operational event such as a deployment or alert.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Severity  EventSeverity     `json:"severity"`
	Source    string            `json:"source"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata"`
}

func (e Event) Signal() SignalType { return SignalEvents }
func (e Event) Time() time.Time    { return e.Timestamp }

// Log is a single application log line.
type Log struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     LogLevel          `json:"level"`
	Service   string            `json:"service"`
	Message   string            `json:"message"`
	TraceID   string            `json:"trace_id,omitempty"`
	SpanID    string            `json:"span_id,omitempty"`
	Metadata  map[string]string `json:"metadata"`
}

func (l Log) Signal() SignalType { return SignalLogs }
func (l Log) Time() time.Time    { return l.Timestamp }

// TraceSpan is one node of a distributed trace tree. Duration is in
// microseconds, matching the wire schema.
type TraceSpan struct {
	TraceID       string            `json:"trace_id"`
	SpanID        string            `json:"span_id"`
	ParentSpanID  string            `json:"parent_span_id,omitempty"`
	OperationName string            `json:"operation_name"`
	StartTime     time.Time         `json:"start_time"`
	Duration      int64             `json:"duration"`
	Service       string            `json:"service"`
	Tags          map[string]string `json:"tags"`
	Status        TraceStatus       `json:"status"`
}

func (t TraceSpan) Signal() SignalType { return SignalTraces }
func (t TraceSpan) Time() time.Time    { return t.StartTime }
