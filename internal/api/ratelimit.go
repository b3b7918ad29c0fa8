package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bc-dunia/agentmon/internal/config"
)

const (
	defaultMaxRateLimiterClients      = 10000
	defaultRateLimiterClientTTL       = 10 * time.Minute
	defaultRateLimiterCleanupInterval = time.Minute
)

// RateLimiterConfig configures the per-client token bucket limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained rate per client.
	RequestsPerSecond float64
	// BurstSize is the bucket capacity per client.
	BurstSize int
	Enabled   bool
	// MaxClients bounds the number of tracked clients; the least recently
	// seen client is dropped when full.
	MaxClients      int
	ClientTTL       time.Duration
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig returns the limiter used when none is configured.
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		RequestsPerSecond: config.DefaultRateLimitPerSecond,
		BurstSize:         config.DefaultRateLimitBurst,
		Enabled:           true,
		MaxClients:        defaultMaxRateLimiterClients,
		ClientTTL:         defaultRateLimiterClientTTL,
		CleanupInterval:   defaultRateLimiterCleanupInterval,
	}
}

type rateLimiter struct {
	config      *RateLimiterConfig
	mu          sync.Mutex
	clients     map[string]*clientLimiter
	lastCleanup time.Time
	nowFunc     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(cfg *RateLimiterConfig) *rateLimiter {
	if cfg == nil {
		cfg = DefaultRateLimiterConfig()
	}
	return &rateLimiter{
		config:      cfg,
		clients:     make(map[string]*clientLimiter),
		lastCleanup: time.Now(),
		nowFunc:     time.Now,
	}
}

// allow reports whether the client identified by key may proceed.
func (rl *rateLimiter) allow(key string) bool {
	if !rl.config.Enabled {
		return true
	}
	if key == "" {
		key = "unknown"
	}

	now := rl.nowFunc()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupLocked(now)

	c, ok := rl.clients[key]
	if !ok {
		if rl.config.MaxClients > 0 && len(rl.clients) >= rl.config.MaxClients {
			rl.evictOldestLocked()
		}
		c = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize),
		}
		rl.clients[key] = c
	}

	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) cleanupLocked(now time.Time) {
	interval := rl.config.CleanupInterval
	if interval <= 0 {
		interval = defaultRateLimiterCleanupInterval
	}
	if now.Sub(rl.lastCleanup) < interval {
		return
	}
	rl.lastCleanup = now

	ttl := rl.config.ClientTTL
	if ttl <= 0 {
		ttl = defaultRateLimiterClientTTL
	}
	cutoff := now.Add(-ttl)
	for key, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

func (rl *rateLimiter) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, c := range rl.clients {
		if first || c.lastSeen.Before(oldest) {
			oldestKey = key
			oldest = c.lastSeen
			first = false
		}
	}
	if oldestKey != "" {
		delete(rl.clients, oldestKey)
	}
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
