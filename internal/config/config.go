// Package config loads agentmon settings from an optional .env file and
// AGENTMON_* environment variables.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	amerr "github.com/bc-dunia/agentmon/pkg/errors"
)

// EnvPrefix prefixes every environment variable, e.g. AGENTMON_SERVER_ADDR.
const EnvPrefix = "AGENTMON"

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Monitor   MonitorConfig
	Rules     RulesConfig
	Retention RetentionConfig
	Tracing   TracingConfig
	Metrics   MetricsConfig
	Sentry    SentryConfig
}

type AppConfig struct {
	Name        string `split_words:"true"`
	Env         string `split_words:"true"`
	LogLevel    string `split_words:"true"`
	Development bool   `split_words:"true"`
}

type ServerConfig struct {
	Addr            string        `split_words:"true"`
	RateLimit       float64       `split_words:"true"`
	RateBurst       int           `split_words:"true"`
	ReadTimeout     time.Duration `split_words:"true"`
	WriteTimeout    time.Duration `split_words:"true"`
	ShutdownTimeout time.Duration `split_words:"true"`
}

type MonitorConfig struct {
	Agents          []string `split_words:"true"`
	UsageCapacity   int      `split_words:"true"`
	LatencyCapacity int      `split_words:"true"`
	AlertCapacity   int      `split_words:"true"`
	RecentWindow    int      `split_words:"true"`
	// Thresholds is a grade table such as "excellent=0.1,good=0.5".
	Thresholds    string `split_words:"true"`
	OverflowGrade string `split_words:"true"`
}

// RulesConfig holds watchdog thresholds. Zero disables a rule.
type RulesConfig struct {
	ErrorRatePercent float64       `split_words:"true"`
	LatencySeconds   float64       `split_words:"true"`
	CPUPercent       float64       `split_words:"true"`
	MemoryPercent    float64       `split_words:"true"`
	MinRequests      int           `split_words:"true"`
	Cooldown         time.Duration `split_words:"true"`
	Interval         time.Duration `split_words:"true"`
}

type RetentionConfig struct {
	ResolvedAlertTTL time.Duration `split_words:"true"`
	SweepInterval    time.Duration `split_words:"true"`
}

type TracingConfig struct {
	Enabled    bool    `split_words:"true"`
	Exporter   string  `split_words:"true"`
	Endpoint   string  `split_words:"true"`
	Insecure   bool    `split_words:"true"`
	SampleRate float64 `split_words:"true"`
}

type MetricsConfig struct {
	Enabled  bool   `split_words:"true"`
	Exporter string `split_words:"true"`
	Endpoint string `split_words:"true"`
	Insecure bool   `split_words:"true"`
}

// SentryConfig enables alert forwarding when DSN is set.
type SentryConfig struct {
	DSN         string `split_words:"true"`
	Environment string `split_words:"true"`
	MinSeverity string `split_words:"true"`
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		App: AppConfig{
			Name:     DefaultAppName,
			Env:      DefaultAppEnv,
			LogLevel: DefaultLogLevel,
		},
		Server: ServerConfig{
			Addr:            DefaultServerAddr,
			RateLimit:       DefaultRateLimitPerSecond,
			RateBurst:       DefaultRateLimitBurst,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Monitor: MonitorConfig{
			Agents:          strings.Split(DefaultAgents, ","),
			UsageCapacity:   DefaultUsageCapacity,
			LatencyCapacity: DefaultLatencyCapacity,
			AlertCapacity:   DefaultAlertCapacity,
			RecentWindow:    DefaultRecentWindow,
			Thresholds:      DefaultThresholds,
			OverflowGrade:   DefaultOverflowGrade,
		},
		Rules: RulesConfig{
			ErrorRatePercent: DefaultErrorRatePercent,
			LatencySeconds:   DefaultLatencySeconds,
			CPUPercent:       DefaultCPUPercent,
			MemoryPercent:    DefaultMemoryPercent,
			MinRequests:      DefaultMinRequests,
			Cooldown:         DefaultRuleCooldown,
			Interval:         DefaultRuleInterval,
		},
		Retention: RetentionConfig{
			ResolvedAlertTTL: DefaultResolvedAlertTTL,
			SweepInterval:    DefaultRetentionInterval,
		},
		Tracing: TracingConfig{
			Exporter:   DefaultExporter,
			SampleRate: DefaultTraceSampleRate,
		},
		Metrics: MetricsConfig{
			Exporter: DefaultExporter,
		},
		Sentry: SentryConfig{
			Environment: DefaultAppEnv,
			MinSeverity: DefaultSentryMinSeverity,
		},
	}
}

// Load reads envFile (or ./.env when empty and present), then overlays
// AGENTMON_* variables on Default and validates the result. Variables already
// set in the process environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, amerr.Wrap(err, amerr.CodeConfigLoadFailure, "load env file", amerr.Field("file", envFile))
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, amerr.Wrap(err, amerr.CodeConfigLoadFailure, "load .env")
	}

	cfg := Default()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, amerr.Wrap(err, amerr.CodeConfigLoadFailure, "process environment")
	}
	cfg.Monitor.Agents = normalizeAgents(cfg.Monitor.Agents)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalizeAgents(agents []string) []string {
	out := make([]string, 0, len(agents))
	for _, a := range agents {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Validate checks ranges and enumerations. Grade tables are parsed by the
// monitor package when monitors are built.
func (c *Config) Validate() error {
	if len(c.Monitor.Agents) == 0 {
		return invalid("monitor.agents", "at least one agent is required")
	}
	seen := make(map[string]bool, len(c.Monitor.Agents))
	for _, a := range c.Monitor.Agents {
		if a == "" {
			return invalid("monitor.agents", "agent name must not be empty")
		}
		if seen[a] {
			return invalid("monitor.agents", "duplicate agent "+a)
		}
		seen[a] = true
	}

	positive := []struct {
		field string
		value int
	}{
		{"monitor.usage_capacity", c.Monitor.UsageCapacity},
		{"monitor.latency_capacity", c.Monitor.LatencyCapacity},
		{"monitor.alert_capacity", c.Monitor.AlertCapacity},
		{"monitor.recent_window", c.Monitor.RecentWindow},
		{"server.rate_burst", c.Server.RateBurst},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return invalid(p.field, "must be positive")
		}
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"retention.resolved_alert_ttl", c.Retention.ResolvedAlertTTL},
		{"retention.sweep_interval", c.Retention.SweepInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return invalid(d.field, "must be positive")
		}
	}

	if c.Server.Addr == "" {
		return invalid("server.addr", "must not be empty")
	}
	if c.Server.RateLimit <= 0 {
		return invalid("server.rate_limit", "must be positive")
	}
	if c.Monitor.Thresholds == "" || c.Monitor.OverflowGrade == "" {
		return invalid("monitor.thresholds", "grade table and overflow grade are required")
	}

	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("app.log_level", "unknown level "+c.App.LogLevel)
	}

	for field, v := range map[string]float64{
		"rules.error_rate_percent": c.Rules.ErrorRatePercent,
		"rules.latency_seconds":    c.Rules.LatencySeconds,
		"rules.cpu_percent":        c.Rules.CPUPercent,
		"rules.memory_percent":     c.Rules.MemoryPercent,
	} {
		if v < 0 {
			return invalid(field, "must not be negative")
		}
	}
	if c.Rules.MinRequests < 0 || c.Rules.Cooldown < 0 {
		return invalid("rules", "min_requests and cooldown must not be negative")
	}
	if c.Rules.Interval < MinRuleInterval {
		return invalid("rules.interval", "must be at least "+MinRuleInterval.String())
	}

	if !validExporter(c.Tracing.Exporter) {
		return invalid("tracing.exporter", "unknown exporter "+c.Tracing.Exporter)
	}
	if !validExporter(c.Metrics.Exporter) {
		return invalid("metrics.exporter", "unknown exporter "+c.Metrics.Exporter)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return invalid("tracing.sample_rate", "must be between 0 and 1")
	}

	switch c.Sentry.MinSeverity {
	case "low", "medium", "high", "critical":
	default:
		return invalid("sentry.min_severity", "unknown severity "+c.Sentry.MinSeverity)
	}
	return nil
}

func validExporter(name string) bool {
	switch name {
	case "none", "stdout", "otlp-grpc", "otlp-http":
		return true
	}
	return false
}

func invalid(field, msg string) error {
	return amerr.New(amerr.CodeConfigValidateInvalidValue, field+": "+msg, amerr.Field("field", field))
}
