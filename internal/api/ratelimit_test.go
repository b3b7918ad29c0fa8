package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(cfg *RateLimiterConfig, now *time.Time) *rateLimiter {
	rl := newRateLimiter(cfg)
	rl.nowFunc = func() time.Time { return *now }
	rl.lastCleanup = *now
	return rl
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(&RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 3, Enabled: true}, &now)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, rl.allow("10.0.0.1"))

	now = now.Add(time.Second)
	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(&RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 1, Enabled: true}, &now)

	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	now := time.Now()
	rl := newTestLimiter(&RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 1}, &now)

	for i := 0; i < 10; i++ {
		assert.True(t, rl.allow("a"))
	}
	assert.Zero(t, rl.size())
}

func TestRateLimiter_MaxClientsEvictsOldest(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(&RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 1, Enabled: true, MaxClients: 2}, &now)

	rl.allow("a")
	now = now.Add(time.Millisecond)
	rl.allow("b")
	now = now.Add(time.Millisecond)
	rl.allow("c")

	assert.Equal(t, 2, rl.size())
	assert.True(t, rl.allow("a"), "evicted client starts with a fresh bucket")
}

func TestRateLimiter_CleanupDropsIdleClients(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(&RateLimiterConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
		Enabled:           true,
		ClientTTL:         time.Minute,
		CleanupInterval:   time.Second,
	}, &now)

	rl.allow("a")
	rl.allow("b")
	assert.Equal(t, 2, rl.size())

	now = now.Add(2 * time.Minute)
	rl.allow("c")
	assert.Equal(t, 1, rl.size())
}

func TestRateLimiter_NilConfigUsesDefaults(t *testing.T) {
	rl := newRateLimiter(nil)
	assert.Equal(t, DefaultRateLimiterConfig(), rl.config)
	assert.True(t, rl.allow(""))
}
