// Package monitor implements the per-agent monitoring core: usage tracking,
// latency grading and alerting, composed per agent by a Facade.
package monitor

import (
	"context"
	"maps"
	"time"
)

// AlertType classifies the condition an alert reports.
type AlertType string

const (
	AlertHighErrorRate    AlertType = "high_error_rate"
	AlertSlowResponseTime AlertType = "slow_response_time"
	AlertHighCPUUsage     AlertType = "high_cpu_usage"
	AlertHighMemoryUsage  AlertType = "high_memory_usage"
	AlertSystemOverload   AlertType = "system_overload"
)

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	switch t {
	case AlertHighErrorRate, AlertSlowResponseTime, AlertHighCPUUsage, AlertHighMemoryUsage, AlertSystemOverload:
		return true
	}
	return false
}

// AlertSeverity is the urgency of an alert.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// Rank orders severities from 1 (low) to 4 (critical); unknown is 0.
func (s AlertSeverity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Valid reports whether s is a known severity.
func (s AlertSeverity) Valid() bool {
	return s.Rank() > 0
}

// UsageMetric is one recorded call of an instrumented endpoint.
type UsageMetric struct {
	ID            string        `json:"metric_id"`
	Agent         string        `json:"agent"`
	SessionID     string        `json:"session_id"`
	Endpoint      string        `json:"endpoint"`
	Method        string        `json:"method"`
	Timestamp     time.Time     `json:"timestamp"`
	Duration      time.Duration `json:"duration_ns"`
	StatusCode    int           `json:"status_code"`
	UserAgent     string        `json:"user_agent,omitempty"`
	IPAddress     string        `json:"ip_address,omitempty"`
	RequestSize   int64         `json:"request_size"`
	ResponseSize  int64         `json:"response_size"`
	CPUPercent    float64       `json:"cpu_usage"`
	MemoryPercent float64       `json:"memory_usage"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// Failed reports whether the metric counts as an error (status >= 400).
func (m UsageMetric) Failed() bool {
	return m.StatusCode >= 400
}

// LatencyMeasurement is one timed operation.
type LatencyMeasurement struct {
	ID           string        `json:"measurement_id"`
	Operation    string        `json:"operation"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration_ns"`
	Success      bool          `json:"success"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// Alert is a recorded notable condition. Only Resolved and ResolvedAt change
// after creation.
type Alert struct {
	ID         string         `json:"alert_id"`
	Type       AlertType      `json:"alert_type"`
	Severity   AlertSeverity  `json:"severity"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Timestamp  time.Time      `json:"timestamp"`
	Agent      string         `json:"agent"`
	Metrics    map[string]any `json:"metrics"`
	Resolved   bool           `json:"resolved"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

func (a *Alert) clone() Alert {
	out := *a
	out.Metrics = maps.Clone(a.Metrics)
	if out.Metrics == nil {
		out.Metrics = map[string]any{}
	}
	if a.ResolvedAt != nil {
		at := *a.ResolvedAt
		out.ResolvedAt = &at
	}
	return out
}

// Wrapper runs fn and records an observation around it. The error fn returns
// is passed back unchanged.
type Wrapper func(ctx context.Context, fn func(ctx context.Context) error) error

// Track runs a value-returning fn under wrap.
func Track[T any](ctx context.Context, wrap Wrapper, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := wrap(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	return out, err
}
