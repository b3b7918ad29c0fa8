// Package retention sweeps resolved alerts out of the per-agent alert logs.
package retention

import (
	"time"

	"github.com/bc-dunia/agentmon/internal/config"
)

// Config holds retention policy configuration.
type Config struct {
	// ResolvedAlertTTL is how long a resolved alert is kept after resolution.
	// Default: 24h
	ResolvedAlertTTL time.Duration

	// SweepInterval is the interval between sweeps.
	// Default: 10m
	SweepInterval time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ResolvedAlertTTL: config.DefaultResolvedAlertTTL,
		SweepInterval:    config.DefaultRetentionInterval,
	}
}

// WithDefaults returns a copy of the config with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	result := c
	if result.ResolvedAlertTTL <= 0 {
		result.ResolvedAlertTTL = config.DefaultResolvedAlertTTL
	}
	if result.SweepInterval <= 0 {
		result.SweepInterval = config.DefaultRetentionInterval
	}
	return result
}
