package monitor

import "time"

// Monitor defaults used when no option overrides them.
const (
	DefaultUsageCapacity   = 10000
	DefaultLatencyCapacity = 1000
	DefaultAlertCapacity   = 1000

	// DefaultRecentWindow is how many recent measurements CurrentPerformance averages.
	DefaultRecentWindow = 100

	DefaultSampleCacheFor = 500 * time.Millisecond
)
