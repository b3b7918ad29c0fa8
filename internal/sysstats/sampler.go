// Package sysstats samples host and process resource usage for usage metrics.
package sysstats

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is a point-in-time resource reading.
type Snapshot struct {
	// CPUPercent is the overall host CPU usage percentage (0-100).
	CPUPercent float64 `json:"cpu_percent"`

	// MemoryPercent is the used share of host memory (0-100).
	MemoryPercent float64 `json:"memory_percent"`

	SampledAt time.Time `json:"sampled_at"`
}

// HostStats is the richer host view served on status endpoints.
type HostStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemTotal      uint64  `json:"mem_total"`
	MemUsed       uint64  `json:"mem_used"`
	MemoryPercent float64 `json:"memory_percent"`
	LoadAvg1      float64 `json:"load_avg_1,omitempty"`
	LoadAvg5      float64 `json:"load_avg_5,omitempty"`
	LoadAvg15     float64 `json:"load_avg_15,omitempty"`

	// Process fields describe the agentmon host process itself.
	PID               int     `json:"pid"`
	ProcessCPUPercent float64 `json:"process_cpu_percent"`
	ProcessMemRSS     uint64  `json:"process_mem_rss"`
	NumThreads        int     `json:"num_threads,omitempty"`

	SampledAt time.Time `json:"sampled_at"`
}

// Sampler reads resource usage at call time.
type Sampler interface {
	Sample(ctx context.Context) (Snapshot, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(ctx context.Context) (Snapshot, error)

// Sample calls f.
func (f SamplerFunc) Sample(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

// Static returns a Sampler that always reports the given percentages.
func Static(cpuPercent, memPercent float64) Sampler {
	return SamplerFunc(func(context.Context) (Snapshot, error) {
		return Snapshot{CPUPercent: cpuPercent, MemoryPercent: memPercent, SampledAt: time.Now()}, nil
	})
}

// HostSampler reads host CPU and memory through gopsutil.
// Host reads are syscalls; CacheFor bounds how often they actually hit the OS
// so a hot instrumented path does not pay for a fresh read per call.
type HostSampler struct {
	CacheFor time.Duration

	mu      sync.Mutex
	last    Snapshot
	hasLast bool
	nowFunc func() time.Time
}

// NewHostSampler creates a HostSampler caching readings for cacheFor.
// A zero cacheFor reads the host on every call.
func NewHostSampler(cacheFor time.Duration) *HostSampler {
	return &HostSampler{CacheFor: cacheFor, nowFunc: time.Now}
}

// Sample returns the current host CPU and memory percentages.
func (s *HostSampler) Sample(ctx context.Context) (Snapshot, error) {
	now := s.nowFunc()

	s.mu.Lock()
	if s.hasLast && s.CacheFor > 0 && now.Sub(s.last.SampledAt) < s.CacheFor {
		snap := s.last
		s.mu.Unlock()
		return snap, nil
	}
	s.mu.Unlock()

	// Percent with a zero interval compares against the previous call,
	// so it never blocks.
	cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read cpu percent: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read virtual memory: %w", err)
	}

	snap := Snapshot{SampledAt: now}
	if len(cpuPercent) > 0 {
		snap.CPUPercent = cpuPercent[0]
	}
	if vm != nil {
		snap.MemoryPercent = vm.UsedPercent
	}

	s.mu.Lock()
	s.last = snap
	s.hasLast = true
	s.mu.Unlock()

	return snap, nil
}

// CollectHostStats gathers host and self-process statistics.
// Individual read failures leave the corresponding fields zero.
func CollectHostStats(ctx context.Context) HostStats {
	stats := HostStats{
		PID:       os.Getpid(),
		SampledAt: time.Now(),
	}

	if cpuPercent, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(cpuPercent) > 0 {
		stats.CPUPercent = cpuPercent[0]
	}

	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil && memInfo != nil {
		stats.MemTotal = memInfo.Total
		stats.MemUsed = memInfo.Used
		stats.MemoryPercent = memInfo.UsedPercent
	}

	if loadAvg, err := load.AvgWithContext(ctx); err == nil && loadAvg != nil {
		stats.LoadAvg1 = loadAvg.Load1
		stats.LoadAvg5 = loadAvg.Load5
		stats.LoadAvg15 = loadAvg.Load15
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(stats.PID)); err == nil {
		if cpuPct, err := proc.CPUPercentWithContext(ctx); err == nil {
			stats.ProcessCPUPercent = cpuPct
		}
		if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil && memInfo != nil {
			stats.ProcessMemRSS = memInfo.RSS
		}
		if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
			stats.NumThreads = int(threads)
		}
	}

	return stats
}
