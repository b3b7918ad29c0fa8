package monitor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bc-dunia/agentmon/internal/events"
	"github.com/bc-dunia/agentmon/internal/otel"
	"github.com/bc-dunia/agentmon/internal/ringbuf"
)

// DefaultOperation is used when Measure is given no operation name.
const DefaultOperation = "api_call"

// Performance is the graded view of recent latency. AvgLatency is in seconds.
type Performance struct {
	AvgLatency       float64          `json:"avg_latency"`
	PerformanceGrade PerformanceGrade `json:"performance_grade"`
	RecentRequests   int              `json:"recent_requests,omitempty"`
}

// OperationStats are cumulative per-operation latency figures in seconds.
type OperationStats struct {
	Count      int64   `json:"count"`
	ErrorCount int64   `json:"error_count"`
	AvgLatency float64 `json:"avg_latency"`
	MinLatency float64 `json:"min_latency"`
	MaxLatency float64 `json:"max_latency"`

	total float64
}

// LatencyMonitor records operation timings and grades the recent mean.
type LatencyMonitor struct {
	agent        string
	thresholds   Thresholds
	recentWindow int

	mu           sync.Mutex
	measurements *ringbuf.Buffer[LatencyMeasurement]
	operations   map[string]*OperationStats

	logger  *events.EventLogger
	tracer  *otel.Tracer
	metrics *otel.Metrics
	nowFunc func() time.Time
}

// NewLatencyMonitor creates a latency monitor for agent. It fails only when a
// supplied threshold table is invalid.
func NewLatencyMonitor(agent string, opts ...Option) (*LatencyMonitor, error) {
	o := buildOptions(DefaultLatencyCapacity, opts)

	thresholds := DefaultThresholds()
	if o.thresholds != nil {
		if err := o.thresholds.Validate(); err != nil {
			return nil, err
		}
		thresholds = *o.thresholds
	}
	window := DefaultRecentWindow
	if o.recentWindow > 0 {
		window = o.recentWindow
	}

	return &LatencyMonitor{
		agent:        agent,
		thresholds:   thresholds,
		recentWindow: window,
		measurements: ringbuf.New[LatencyMeasurement](o.capacity),
		operations:   make(map[string]*OperationStats),
		logger:       o.logger,
		tracer:       o.tracer,
		metrics:      o.metrics,
		nowFunc:      o.nowFunc,
	}, nil
}

// Thresholds returns the grading table in use.
func (l *LatencyMonitor) Thresholds() Thresholds {
	return l.thresholds
}

// Record appends m, evicting the oldest measurement when full.
func (l *LatencyMonitor) Record(m LatencyMeasurement) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Operation == "" {
		m.Operation = DefaultOperation
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.measurements.Push(m)

	secs := m.Duration.Seconds()
	st, ok := l.operations[m.Operation]
	if !ok {
		st = &OperationStats{MinLatency: math.Inf(1)}
		l.operations[m.Operation] = st
	}
	st.Count++
	if !m.Success {
		st.ErrorCount++
	}
	st.total += secs
	st.AvgLatency = st.total / float64(st.Count)
	st.MinLatency = math.Min(st.MinLatency, secs)
	st.MaxLatency = math.Max(st.MaxLatency, secs)
}

// Measure returns a Wrapper timing each call of operation. Failures are
// recorded with success=false and the error message, then returned as is.
func (l *LatencyMonitor) Measure(operation string) Wrapper {
	if operation == "" {
		operation = DefaultOperation
	}
	return func(ctx context.Context, fn func(ctx context.Context) error) (err error) {
		ctx, span := l.tracer.StartOperationSpan(ctx, otel.OperationSpanOptions{
			Agent:     l.agent,
			Monitor:   "latency",
			Operation: operation,
		})
		defer span.End()

		start := l.nowFunc()
		defer func() {
			if r := recover(); r != nil {
				perr := fmt.Errorf("panic: %v", r)
				l.observe(ctx, operation, start, perr)
				otel.RecordError(span, perr, "panic")
				panic(r)
			}
		}()

		err = fn(ctx)
		l.observe(ctx, operation, start, err)
		if err != nil {
			otel.RecordError(span, err, "operation")
		}
		return err
	}
}

func (l *LatencyMonitor) observe(ctx context.Context, operation string, start time.Time, callErr error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.LogInstrumentationFailure("latency", operation, r)
		}
	}()

	end := l.nowFunc()
	m := LatencyMeasurement{
		ID:        uuid.NewString(),
		Operation: operation,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Success:   callErr == nil,
	}
	if callErr != nil {
		m.ErrorMessage = errorMessage(callErr)
	}

	l.Record(m)
	l.metrics.RecordOperation(ctx, l.agent, "latency", operation, m.Duration.Seconds(), m.Success)
}

// CurrentPerformance grades the mean of the most recent measurements.
// With no measurements the mean is 0.
func (l *LatencyMonitor) CurrentPerformance() Performance {
	l.mu.Lock()
	recent := l.measurements.Last(l.recentWindow)
	l.mu.Unlock()

	durations := make([]float64, len(recent))
	for i, m := range recent {
		durations[i] = m.Duration.Seconds()
	}
	grade, mean := Grade(l.thresholds, durations)
	return Performance{
		AvgLatency:       mean,
		PerformanceGrade: grade,
		RecentRequests:   len(recent),
	}
}

// OperationStats returns a copy of the per-operation figures.
func (l *LatencyMonitor) OperationStats() map[string]OperationStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]OperationStats, len(l.operations))
	for name, st := range l.operations {
		out[name] = *st
	}
	return out
}

// Len returns the number of buffered measurements.
func (l *LatencyMonitor) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.measurements.Len()
}

// Cap returns the measurement capacity.
func (l *LatencyMonitor) Cap() int {
	return l.measurements.Cap()
}

// Snapshot returns buffered measurements oldest first.
func (l *LatencyMonitor) Snapshot() []LatencyMeasurement {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.measurements.Snapshot()
}

// BufferStats reports lifetime push and eviction counts.
func (l *LatencyMonitor) BufferStats() ringbuf.Stats {
	return l.measurements.Stats()
}
