package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerr "github.com/bc-dunia/agentmon/pkg/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"customer_success", "developer", "gossipqueen"}, cfg.Monitor.Agents)
	assert.Equal(t, 10000, cfg.Monitor.UsageCapacity)
	assert.Equal(t, 1000, cfg.Monitor.LatencyCapacity)
	assert.Equal(t, 100, cfg.Monitor.RecentWindow)
	assert.Equal(t, DefaultThresholds, cfg.Monitor.Thresholds)
	assert.Equal(t, 5.0, cfg.Rules.ErrorRatePercent)
	assert.Equal(t, 2.0, cfg.Rules.LatencySeconds)
	assert.Equal(t, 80.0, cfg.Rules.CPUPercent)
	assert.Equal(t, 85.0, cfg.Rules.MemoryPercent)
	assert.Equal(t, ":8088", cfg.Server.Addr)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "none", cfg.Metrics.Exporter)
	assert.Empty(t, cfg.Sentry.DSN)
}

func TestLoad_Environment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AGENTMON_MONITOR_AGENTS", "developer, gossipqueen ,")
	t.Setenv("AGENTMON_MONITOR_RECENT_WINDOW", "50")
	t.Setenv("AGENTMON_SERVER_ADDR", "127.0.0.1:9000")
	t.Setenv("AGENTMON_RULES_CPU_PERCENT", "0")
	t.Setenv("AGENTMON_RULES_COOLDOWN", "1m")
	t.Setenv("AGENTMON_RETENTION_RESOLVED_ALERT_TTL", "2h")
	t.Setenv("AGENTMON_TRACING_ENABLED", "true")
	t.Setenv("AGENTMON_TRACING_EXPORTER", "stdout")
	t.Setenv("AGENTMON_SENTRY_DSN", "https://public@sentry.example.com/1")
	t.Setenv("AGENTMON_SENTRY_MIN_SEVERITY", "critical")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"developer", "gossipqueen"}, cfg.Monitor.Agents)
	assert.Equal(t, 50, cfg.Monitor.RecentWindow)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Zero(t, cfg.Rules.CPUPercent)
	assert.Equal(t, time.Minute, cfg.Rules.Cooldown)
	assert.Equal(t, 2*time.Hour, cfg.Retention.ResolvedAlertTTL)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
	assert.Equal(t, "https://public@sentry.example.com/1", cfg.Sentry.DSN)
	assert.Equal(t, "critical", cfg.Sentry.MinSeverity)

	// untouched fields keep their defaults
	assert.Equal(t, DefaultUsageCapacity, cfg.Monitor.UsageCapacity)
	assert.Equal(t, DefaultRuleInterval, cfg.Rules.Interval)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentmon.env")
	require.NoError(t, os.WriteFile(path, []byte("AGENTMON_MONITOR_USAGE_CAPACITY=42\nAGENTMON_APP_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("AGENTMON_MONITOR_USAGE_CAPACITY")
		os.Unsetenv("AGENTMON_APP_LOG_LEVEL")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Monitor.UsageCapacity)
	assert.Equal(t, "debug", cfg.App.LogLevel)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.True(t, amerr.HasCode(err, amerr.CodeConfigLoadFailure))
}

func TestLoad_BadValue(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AGENTMON_MONITOR_ALERT_CAPACITY", "lots")

	_, err := Load("")
	assert.True(t, amerr.HasCode(err, amerr.CodeConfigLoadFailure))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"no agents", func(c *Config) { c.Monitor.Agents = nil }, "monitor.agents"},
		{"duplicate agent", func(c *Config) { c.Monitor.Agents = []string{"a", "a"} }, "monitor.agents"},
		{"zero usage capacity", func(c *Config) { c.Monitor.UsageCapacity = 0 }, "monitor.usage_capacity"},
		{"zero recent window", func(c *Config) { c.Monitor.RecentWindow = 0 }, "monitor.recent_window"},
		{"zero burst", func(c *Config) { c.Server.RateBurst = 0 }, "server.rate_burst"},
		{"zero rate", func(c *Config) { c.Server.RateLimit = 0 }, "server.rate_limit"},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"zero ttl", func(c *Config) { c.Retention.ResolvedAlertTTL = 0 }, "retention.resolved_alert_ttl"},
		{"no thresholds", func(c *Config) { c.Monitor.Thresholds = "" }, "monitor.thresholds"},
		{"bad log level", func(c *Config) { c.App.LogLevel = "loud" }, "app.log_level"},
		{"negative cpu", func(c *Config) { c.Rules.CPUPercent = -1 }, "rules.cpu_percent"},
		{"fast interval", func(c *Config) { c.Rules.Interval = time.Millisecond }, "rules.interval"},
		{"bad exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }, "tracing.exporter"},
		{"bad metrics exporter", func(c *Config) { c.Metrics.Exporter = "prom" }, "metrics.exporter"},
		{"bad sample rate", func(c *Config) { c.Tracing.SampleRate = 1.5 }, "tracing.sample_rate"},
		{"bad severity", func(c *Config) { c.Sentry.MinSeverity = "urgent" }, "sentry.min_severity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, amerr.IsInvalidInput(err))
			assert.Equal(t, tt.field, amerr.FieldsOf(err)["field"])
		})
	}
}
