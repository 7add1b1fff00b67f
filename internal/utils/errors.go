package utils

import (
	"fmt"
	"time"

	"github.com/observelab/meltgen/internal/models"
)

// ConfigError reports an invalid generation configuration. It is raised once
// at session construction and never retried.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Msg)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Msg)
}

// NewConfigError constructs a ConfigError for the named field.
func NewConfigError(field, msg string) error {
	return &ConfigError{Field: field, Msg: msg}
}

// InvariantError reports that a generator would have emitted a record
// violating a data-model invariant. It indicates a logic defect, so the
// session aborts without retry. The embedded context is enough to replay
// the failure from the same seed.
type InvariantError struct {
	Seed    int64
	Elapsed time.Duration
	Signal  models.SignalType
	Index   int64
	Msg     string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("generation invariant violated: %s (seed=%d elapsed=%s signal=%s record=%d)",
		e.Msg, e.Seed, e.Elapsed, e.Signal, e.Index)
}

// SinkError reports an exhausted flush after bounded retries. Flushed counts
// the records durably written before the failure; the failed batch was not
// partially written.
type SinkError struct {
	Signal  models.SignalType
	Flushed int64
	Err     error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink write failed for %s after %d durable records: %v", e.Signal, e.Flushed, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
