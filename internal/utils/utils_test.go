package utils

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/observelab/meltgen/internal/models"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"100MB", 100 << 20, false},
		{"1GB", 1 << 30, false},
		{"2tb", 2 << 40, false},
		{"512kb", 512 << 10, false},
		{"64B", 64, false},
		{"4096", 4096, false},
		{"1.5MB", 1536 << 10, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-1GB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSize(%q) succeeded with %d, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSize(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRFC3339(t *testing.T) {
	got, err := ParseRFC3339("2025-06-01T12:00:00Z")
	if err != nil {
		t.Fatalf("ParseRFC3339: %v", err)
	}
	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ParseRFC3339 = %v, want %v", got, want)
	}

	if _, err := ParseRFC3339(""); err == nil {
		t.Fatal("expected error for empty value")
	}
	if _, err := ParseRFC3339("June 1st"); err == nil {
		t.Fatal("expected error for non-RFC3339 value")
	}
}

func TestSinkErrorUnwrap(t *testing.T) {
	inner := io.ErrShortWrite
	err := &SinkError{Signal: models.SignalLogs, Flushed: 120, Err: inner}
	if !errors.Is(err, io.ErrShortWrite) {
		t.Fatal("SinkError does not unwrap to its cause")
	}
}

func TestLatencyTracker(t *testing.T) {
	tr := NewLatencyTracker(8)
	if got := tr.Percentile(95); got != 0 {
		t.Fatalf("empty tracker percentile = %v, want 0", got)
	}

	for i := 1; i <= 10; i++ {
		tr.Observe(time.Duration(i) * time.Millisecond)
	}
	// Capacity 8 keeps only the most recent observations.
	if got := tr.Count(); got != 8 {
		t.Fatalf("Count = %d, want 8", got)
	}
	p := tr.Percentile(95)
	if p < 3*time.Millisecond || p > 10*time.Millisecond {
		t.Fatalf("Percentile(95) = %v, outside retained window", p)
	}
}
