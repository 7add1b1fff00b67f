package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/observelab/meltgen/internal/utils"
)

// Config captures everything a generation session needs.
type Config struct {
	Generation GenerationConfig `yaml:"generation"`
	Anomalies  AnomalyConfig    `yaml:"anomalies"`
	Sink       SinkConfig       `yaml:"sink"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// GenerationConfig controls the entity universe, cadences, and baseline
// distributions.
type GenerationConfig struct {
	Seed         int64               `yaml:"seed"`
	StartTime    string              `yaml:"startTime"` // RFC3339; empty means caller-supplied
	Duration     time.Duration       `yaml:"duration"`
	Services     []string            `yaml:"services"`
	Hosts        []string            `yaml:"hosts"`
	Environments []string            `yaml:"environments"`
	ServiceHosts map[string][]string `yaml:"serviceHosts"` // service -> plausible hosts
	ServiceEnvs  map[string][]string `yaml:"serviceEnvs"`  // service -> plausible environments
	Dependencies map[string][]string `yaml:"dependencies"` // service -> dependents (outage cascade)

	MetricsFrequency time.Duration `yaml:"metricsFrequency"`
	LogsFrequency    time.Duration `yaml:"logsFrequency"`
	TracesFrequency  time.Duration `yaml:"tracesFrequency"`
	EventsFrequency  time.Duration `yaml:"eventsFrequency"`

	ErrorRate       float64 `yaml:"errorRate"`
	DebugLogRatio   float64 `yaml:"debugLogRatio"`
	MissingSpanRate float64 `yaml:"missingSpanRate"`
	MaxTraceDepth   int     `yaml:"maxTraceDepth"`

	// TimeoutThreshold is the span duration past which a latency-spiked span
	// reports status=timeout.
	TimeoutThreshold time.Duration `yaml:"timeoutThreshold"`
}

// AnomalyConfig holds per-kind trigger settings.
type AnomalyConfig struct {
	CPUSpike      WindowConfig `yaml:"cpuSpike"`
	ServiceOutage WindowConfig `yaml:"serviceOutage"`
	LatencySpike  WindowConfig `yaml:"latencySpike"`
	ErrorBurst    WindowConfig `yaml:"errorBurst"`
}

// WindowConfig parameterises one anomaly kind. Duration and intensity are
// drawn uniformly from their ranges when a window opens.
type WindowConfig struct {
	Probability  float64       `yaml:"probability"` // per bucket, per service
	MinDuration  time.Duration `yaml:"minDuration"`
	MaxDuration  time.Duration `yaml:"maxDuration"`
	MinIntensity float64       `yaml:"minIntensity"`
	MaxIntensity float64       `yaml:"maxIntensity"`
	// SpanDropRate amplifies missing spans during service outages.
	SpanDropRate float64 `yaml:"spanDropRate,omitempty"`
	// BurstErrorRate is the target error fraction during error bursts.
	BurstErrorRate float64 `yaml:"burstErrorRate,omitempty"`
}

// SinkConfig controls streaming output batching and retry.
type SinkConfig struct {
	BatchBytes   int           `yaml:"batchBytes"`
	BatchRecords int           `yaml:"batchRecords"`
	MaxRetries   int           `yaml:"maxRetries"`
	RetryBackoff time.Duration `yaml:"retryBackoff"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MELTGEN_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Default returns the baseline configuration used when no file is given.
func Default() Config {
	return Config{
		Generation: GenerationConfig{
			Seed:             42,
			Duration:         time.Hour,
			Services:         []string{"api", "web", "database"},
			Hosts:            []string{"web-01", "web-02", "db-01"},
			Environments:     []string{"production"},
			MetricsFrequency: 30 * time.Second,
			LogsFrequency:    time.Second,
			TracesFrequency:  10 * time.Second,
			EventsFrequency:  5 * time.Minute,
			ErrorRate:        0.05,
			DebugLogRatio:    0.3,
			MissingSpanRate:  0.02,
			MaxTraceDepth:    5,
			TimeoutThreshold: time.Second,
		},
		Anomalies: AnomalyConfig{
			CPUSpike: WindowConfig{
				Probability:  0.05,
				MinDuration:  2 * time.Minute,
				MaxDuration:  5 * time.Minute,
				MinIntensity: 2.0,
				MaxIntensity: 4.0,
			},
			ServiceOutage: WindowConfig{
				Probability:  0.01,
				MinDuration:  5 * time.Minute,
				MaxDuration:  10 * time.Minute,
				MinIntensity: 1.0,
				MaxIntensity: 1.0,
				SpanDropRate: 0.3,
			},
			LatencySpike: WindowConfig{
				Probability:  0.03,
				MinDuration:  1 * time.Minute,
				MaxDuration:  3 * time.Minute,
				MinIntensity: 2.0,
				MaxIntensity: 10.0,
			},
			ErrorBurst: WindowConfig{
				Probability:    0.02,
				MinDuration:    1 * time.Minute,
				MaxDuration:    2 * time.Minute,
				MinIntensity:   1.0,
				MaxIntensity:   1.0,
				BurstErrorRate: 0.5,
			},
		},
		Sink: SinkConfig{
			BatchBytes:   1 << 20,
			BatchRecords: 4096,
			MaxRetries:   3,
			RetryBackoff: 200 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MELTGEN_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Generation.Seed = seed
		}
	}
	if v := os.Getenv("MELTGEN_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Generation.Duration = d
		}
	}
	if v := os.Getenv("MELTGEN_SERVICES"); v != "" {
		cfg.Generation.Services = splitList(v)
	}
	if v := os.Getenv("MELTGEN_HOSTS"); v != "" {
		cfg.Generation.Hosts = splitList(v)
	}
	if v := os.Getenv("MELTGEN_ENVIRONMENTS"); v != "" {
		cfg.Generation.Environments = splitList(v)
	}
	if v := os.Getenv("MELTGEN_START_TIME"); v != "" {
		cfg.Generation.StartTime = v
	}
	if v := os.Getenv("MELTGEN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MELTGEN_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate performs the fail-fast checks a session requires. It returns a
// ConfigError describing the first problem found.
func (c *Config) Validate() error {
	g := c.Generation
	if len(g.Services) == 0 {
		return utils.NewConfigError("generation.services", "at least one service required")
	}
	if len(g.Hosts) == 0 {
		return utils.NewConfigError("generation.hosts", "at least one host required")
	}
	if len(g.Environments) == 0 {
		return utils.NewConfigError("generation.environments", "at least one environment required")
	}
	if g.Duration <= 0 {
		return utils.NewConfigError("generation.duration", "must be positive")
	}
	if g.StartTime != "" {
		if _, err := utils.ParseRFC3339(g.StartTime); err != nil {
			return utils.NewConfigError("generation.startTime", err.Error())
		}
	}

	freqs := []struct {
		name string
		d    time.Duration
	}{
		{"generation.metricsFrequency", g.MetricsFrequency},
		{"generation.logsFrequency", g.LogsFrequency},
		{"generation.tracesFrequency", g.TracesFrequency},
		{"generation.eventsFrequency", g.EventsFrequency},
	}
	for _, f := range freqs {
		if f.d <= 0 {
			return utils.NewConfigError(f.name, "must be positive")
		}
	}

	rates := []struct {
		name string
		v    float64
	}{
		{"generation.errorRate", g.ErrorRate},
		{"generation.debugLogRatio", g.DebugLogRatio},
		{"generation.missingSpanRate", g.MissingSpanRate},
	}
	for _, r := range rates {
		if r.v < 0 || r.v > 1 {
			return utils.NewConfigError(r.name, "must be within [0, 1]")
		}
	}
	if g.MaxTraceDepth < 1 {
		return utils.NewConfigError("generation.maxTraceDepth", "must be at least 1")
	}
	if g.TimeoutThreshold <= 0 {
		return utils.NewConfigError("generation.timeoutThreshold", "must be positive")
	}

	windows := []struct {
		name string
		w    WindowConfig
	}{
		{"anomalies.cpuSpike", c.Anomalies.CPUSpike},
		{"anomalies.serviceOutage", c.Anomalies.ServiceOutage},
		{"anomalies.latencySpike", c.Anomalies.LatencySpike},
		{"anomalies.errorBurst", c.Anomalies.ErrorBurst},
	}
	for _, win := range windows {
		if win.w.Probability < 0 || win.w.Probability > 1 {
			return utils.NewConfigError(win.name+".probability", "must be within [0, 1]")
		}
		if win.w.MinDuration <= 0 || win.w.MaxDuration < win.w.MinDuration {
			return utils.NewConfigError(win.name, "duration range must be positive and ordered")
		}
		if win.w.MinIntensity <= 0 || win.w.MaxIntensity < win.w.MinIntensity {
			return utils.NewConfigError(win.name, "intensity range must be positive and ordered")
		}
		if win.w.SpanDropRate < 0 || win.w.SpanDropRate > 1 {
			return utils.NewConfigError(win.name+".spanDropRate", "must be within [0, 1]")
		}
		if win.w.BurstErrorRate < 0 || win.w.BurstErrorRate > 1 {
			return utils.NewConfigError(win.name+".burstErrorRate", "must be within [0, 1]")
		}
	}

	if c.Sink.BatchBytes <= 0 {
		return utils.NewConfigError("sink.batchBytes", "must be positive")
	}
	if c.Sink.BatchRecords <= 0 {
		return utils.NewConfigError("sink.batchRecords", "must be positive")
	}
	if c.Sink.MaxRetries < 0 {
		return utils.NewConfigError("sink.maxRetries", "must not be negative")
	}

	return nil
}
