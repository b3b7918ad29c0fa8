package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bc-dunia/agentmon/internal/events"
	"github.com/bc-dunia/agentmon/internal/otel"
	"github.com/bc-dunia/agentmon/internal/ringbuf"
	"github.com/bc-dunia/agentmon/internal/sysstats"
)

// MethodWebSocket marks usage recorded for websocket handlers.
const MethodWebSocket = "WEBSOCKET"

// UsageSummary aggregates the buffered usage history.
type UsageSummary struct {
	TotalRequests int       `json:"total_requests"`
	ErrorCount    int       `json:"error_count"`
	SuccessRate   float64   `json:"success_rate"`
	Timestamp     time.Time `json:"timestamp"`
}

// MarshalJSON renders an empty summary as {"total_requests":0}.
func (s UsageSummary) MarshalJSON() ([]byte, error) {
	if s.TotalRequests == 0 {
		return []byte(`{"total_requests":0}`), nil
	}
	type plain UsageSummary
	return json.Marshal(plain(s))
}

// EndpointStats are cumulative per-endpoint counters since the monitor started.
// They are not bounded by the history capacity.
type EndpointStats struct {
	TotalRequests int64     `json:"total_requests"`
	SuccessCount  int64     `json:"success_count"`
	ErrorCount    int64     `json:"error_count"`
	TotalDuration float64   `json:"total_duration"`
	AvgDuration   float64   `json:"avg_duration"`
	LastRequest   time.Time `json:"last_request"`
}

// UsageMonitor records per-call usage metrics into a bounded history.
type UsageMonitor struct {
	agent string

	mu        sync.Mutex
	history   *ringbuf.Buffer[UsageMetric]
	endpoints map[string]*EndpointStats

	sampler sysstats.Sampler
	logger  *events.EventLogger
	tracer  *otel.Tracer
	metrics *otel.Metrics
	nowFunc func() time.Time
}

// NewUsageMonitor creates a usage monitor for agent.
func NewUsageMonitor(agent string, opts ...Option) *UsageMonitor {
	o := buildOptions(DefaultUsageCapacity, opts)
	if o.sampler == nil {
		o.sampler = sysstats.NewHostSampler(DefaultSampleCacheFor)
	}
	return &UsageMonitor{
		agent:     agent,
		history:   ringbuf.New[UsageMetric](o.capacity),
		endpoints: make(map[string]*EndpointStats),
		sampler:   o.sampler,
		logger:    o.logger,
		tracer:    o.tracer,
		metrics:   o.metrics,
		nowFunc:   o.nowFunc,
	}
}

// Agent returns the agent identity.
func (u *UsageMonitor) Agent() string {
	return u.agent
}

// Record appends m, evicting the oldest metric when full. Missing ID, agent,
// session and timestamp are filled in.
func (u *UsageMonitor) Record(m UsageMetric) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Agent == "" {
		m.Agent = u.agent
	}
	if m.SessionID == "" {
		m.SessionID = DefaultSessionID
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = u.nowFunc()
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	u.history.Push(m)

	st, ok := u.endpoints[m.Endpoint]
	if !ok {
		st = &EndpointStats{}
		u.endpoints[m.Endpoint] = st
	}
	st.TotalRequests++
	if m.Failed() {
		st.ErrorCount++
	} else {
		st.SuccessCount++
	}
	st.TotalDuration += m.Duration.Seconds()
	st.AvgDuration = st.TotalDuration / float64(st.TotalRequests)
	if m.Timestamp.After(st.LastRequest) {
		st.LastRequest = m.Timestamp
	}
}

// Instrument returns a Wrapper recording one metric per call: status 200 on
// success, 500 plus the error message on failure. An empty method means POST.
func (u *UsageMonitor) Instrument(endpoint, method string) Wrapper {
	if method == "" {
		method = http.MethodPost
	}
	return func(ctx context.Context, fn func(ctx context.Context) error) (err error) {
		opts := otel.OperationSpanOptions{
			Agent:     u.agent,
			Monitor:   "usage",
			Operation: endpoint,
			Method:    method,
		}
		if info, ok := RequestInfoFrom(ctx); ok {
			opts.SessionID = info.SessionID
		}
		ctx, span := u.tracer.StartOperationSpan(ctx, opts)
		defer span.End()

		start := u.nowFunc()
		defer func() {
			if r := recover(); r != nil {
				perr := fmt.Errorf("panic: %v", r)
				u.observe(ctx, endpoint, method, start, perr)
				otel.RecordError(span, perr, "panic")
				panic(r)
			}
		}()

		err = fn(ctx)
		u.observe(ctx, endpoint, method, start, err)
		if err != nil {
			otel.RecordError(span, err, "operation")
		}
		return err
	}
}

// InstrumentWebSocket is Instrument with the WEBSOCKET method.
func (u *UsageMonitor) InstrumentWebSocket(endpoint string) Wrapper {
	return u.Instrument(endpoint, MethodWebSocket)
}

func (u *UsageMonitor) observe(ctx context.Context, endpoint, method string, start time.Time, callErr error) {
	defer func() {
		if r := recover(); r != nil {
			u.logger.LogInstrumentationFailure("usage", endpoint, r)
		}
	}()

	duration := u.nowFunc().Sub(start)

	m := UsageMetric{
		ID:         uuid.NewString(),
		Agent:      u.agent,
		Endpoint:   endpoint,
		Method:     method,
		Timestamp:  start,
		Duration:   duration,
		StatusCode: http.StatusOK,
	}
	m.applyRequestInfo(ctx)
	if callErr != nil {
		m.StatusCode = http.StatusInternalServerError
		m.ErrorMessage = errorMessage(callErr)
	}

	// Sampled after the clock stops so host reads never count as call time.
	snap, err := u.sampler.Sample(context.WithoutCancel(ctx))
	if err != nil {
		u.logger.LogResourceSampleFailed(err)
	} else {
		m.CPUPercent = snap.CPUPercent
		m.MemoryPercent = snap.MemoryPercent
	}

	u.Record(m)
	u.metrics.RecordOperation(ctx, u.agent, "usage", endpoint, duration.Seconds(), callErr == nil)
	u.metrics.RecordBytes(ctx, u.agent, endpoint, m.RequestSize, m.ResponseSize)
}

// Summary aggregates the buffered history under the recording lock.
func (u *UsageMonitor) Summary() UsageSummary {
	u.mu.Lock()
	defer u.mu.Unlock()

	s := UsageSummary{
		TotalRequests: u.history.Len(),
		SuccessRate:   100.0,
		Timestamp:     u.nowFunc(),
	}
	if s.TotalRequests == 0 {
		return s
	}

	u.history.Each(func(m UsageMetric) bool {
		if m.Failed() {
			s.ErrorCount++
		}
		return true
	})
	s.SuccessRate = float64(s.TotalRequests-s.ErrorCount) / float64(s.TotalRequests) * 100
	return s
}

// EndpointStats returns a copy of the per-endpoint counters.
func (u *UsageMonitor) EndpointStats() map[string]EndpointStats {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make(map[string]EndpointStats, len(u.endpoints))
	for name, st := range u.endpoints {
		out[name] = *st
	}
	return out
}

// Len returns the number of buffered metrics.
func (u *UsageMonitor) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.history.Len()
}

// Cap returns the history capacity.
func (u *UsageMonitor) Cap() int {
	return u.history.Cap()
}

// Snapshot returns the buffered metrics oldest first.
func (u *UsageMonitor) Snapshot() []UsageMetric {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.history.Snapshot()
}

// Recent returns up to n of the newest metrics, oldest first.
func (u *UsageMonitor) Recent(n int) []UsageMetric {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.history.Last(n)
}

// BufferStats reports lifetime push and eviction counts.
func (u *UsageMonitor) BufferStats() ringbuf.Stats {
	return u.history.Stats()
}

func errorMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fmt.Sprintf("%T", err)
}
