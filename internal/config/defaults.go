package config

import (
	"time"

	"github.com/bc-dunia/agentmon/internal/monitor"
)

// Default configuration constants for monitors and alerting
const (
	DefaultAgents          = "customer_success,developer,gossipqueen"
	DefaultUsageCapacity   = monitor.DefaultUsageCapacity
	DefaultLatencyCapacity = monitor.DefaultLatencyCapacity
	DefaultAlertCapacity   = monitor.DefaultAlertCapacity
	DefaultRecentWindow    = monitor.DefaultRecentWindow

	// DefaultThresholds is the latency grading table; means above the last
	// bound grade as DefaultOverflowGrade.
	DefaultThresholds    = "excellent=0.1,good=0.5,acceptable=1.0,poor=2.0"
	DefaultOverflowGrade = "unacceptable"

	DefaultSampleCacheFor = monitor.DefaultSampleCacheFor
)

// Watchdog rule defaults
const (
	DefaultErrorRatePercent = 5.0
	DefaultLatencySeconds   = 2.0
	DefaultCPUPercent       = 80.0
	DefaultMemoryPercent    = 85.0
	DefaultRuleCooldown     = 5 * time.Minute
	DefaultRuleInterval     = 30 * time.Second
	MinRuleInterval         = time.Second
)

// Retention and server defaults
const (
	DefaultResolvedAlertTTL   = 24 * time.Hour
	DefaultRetentionInterval  = 10 * time.Minute
	DefaultServerAddr         = ":8088"
	DefaultRateLimitPerSecond = 50.0
	DefaultRateLimitBurst     = 100
	DefaultReadTimeout        = 10 * time.Second
	DefaultWriteTimeout       = 15 * time.Second
	DefaultShutdownTimeout    = 10 * time.Second
)

// App, telemetry and notifier defaults
const (
	DefaultAppName           = "agentmon"
	DefaultAppEnv            = "development"
	DefaultLogLevel          = "info"
	DefaultExporter          = "none"
	DefaultTraceSampleRate   = 1.0
	DefaultSentryMinSeverity = "high"
	DefaultMinRequests       = 10
)
