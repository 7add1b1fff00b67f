package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// ParseSize converts a human size string ("100MB", "1GB", "4096") to bytes.
// A bare number is taken as bytes.
func ParseSize(value string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(value))
	if s == "" {
		return 0, fmt.Errorf("empty size value")
	}

	multipliers := []struct {
		suffix string
		factor int64
	}{
		{"TB", 1 << 40},
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}

	for _, m := range multipliers {
		if !strings.HasSuffix(s, m.suffix) {
			continue
		}
		num, err := strconv.ParseFloat(strings.TrimSuffix(s, m.suffix), 64)
		if err != nil {
			return 0, fmt.Errorf("parse size %q: %w", value, err)
		}
		if num < 0 {
			return 0, fmt.Errorf("parse size %q: negative", value)
		}
		return int64(num * float64(m.factor)), nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", value, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("parse size %q: negative", value)
	}
	return n, nil
}
