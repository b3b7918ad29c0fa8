package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bc-dunia/agentmon/internal/events"
	"github.com/bc-dunia/agentmon/internal/sysstats"
)

// stepClock returns a clock that advances by step on every call.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(step)
		return t
	}
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestUsage(opts ...Option) *UsageMonitor {
	base := []Option{WithSampler(sysstats.Static(25, 50)), WithClock(stepClock(epoch, 10*time.Millisecond))}
	return NewUsageMonitor("developer", append(base, opts...)...)
}

func TestUsageMonitor_RecordKeepsLastC(t *testing.T) {
	const capacity, n = 10, 25
	u := newTestUsage(WithCapacity(capacity))

	for i := 0; i < n; i++ {
		u.Record(UsageMetric{Endpoint: fmt.Sprintf("/e%d", i), StatusCode: 200})
	}

	got := u.Snapshot()
	require.Len(t, got, capacity)
	for i, m := range got {
		assert.Equal(t, fmt.Sprintf("/e%d", n-capacity+i), m.Endpoint)
	}
	assert.EqualValues(t, n-capacity, u.BufferStats().Evicted)
}

func TestUsageMonitor_RecordFillsDefaults(t *testing.T) {
	u := newTestUsage()
	u.Record(UsageMetric{Endpoint: "/chat", StatusCode: 200})

	m := u.Snapshot()[0]
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "developer", m.Agent)
	assert.Equal(t, DefaultSessionID, m.SessionID)
	assert.False(t, m.Timestamp.IsZero())
}

func TestUsageMonitor_SummaryEmpty(t *testing.T) {
	u := newTestUsage()

	s := u.Summary()
	assert.Equal(t, 0, s.TotalRequests)
	assert.Equal(t, 100.0, s.SuccessRate)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_requests":0}`, string(raw))
}

func TestUsageMonitor_Summary(t *testing.T) {
	u := newTestUsage()
	for _, code := range []int{200, 200, 201, 404, 500} {
		u.Record(UsageMetric{Endpoint: "/chat", StatusCode: code})
	}

	s := u.Summary()
	assert.Equal(t, 5, s.TotalRequests)
	assert.Equal(t, 2, s.ErrorCount)
	assert.InDelta(t, 60.0, s.SuccessRate, 1e-9)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "error_count")
	assert.Contains(t, decoded, "timestamp")
}

func TestUsageMonitor_InstrumentSuccess(t *testing.T) {
	u := newTestUsage()

	err := u.Instrument("/chat", "POST")(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)

	got := u.Snapshot()
	require.Len(t, got, 1)
	m := got[0]
	assert.Equal(t, 200, m.StatusCode)
	assert.Equal(t, "/chat", m.Endpoint)
	assert.Equal(t, "POST", m.Method)
	assert.Equal(t, 25.0, m.CPUPercent)
	assert.Equal(t, 50.0, m.MemoryPercent)
	assert.Equal(t, 10*time.Millisecond, m.Duration)
	assert.Empty(t, m.ErrorMessage)
}

func TestUsageMonitor_InstrumentFailurePropagatesError(t *testing.T) {
	u := newTestUsage()
	want := errors.New("model timeout")

	err := u.Instrument("/chat", "")(context.Background(), func(context.Context) error { return want })
	require.Error(t, err)
	assert.Same(t, want, err)
	assert.ErrorIs(t, err, want)

	m := u.Snapshot()[0]
	assert.Equal(t, 500, m.StatusCode)
	assert.Equal(t, "model timeout", m.ErrorMessage)
	assert.Equal(t, "POST", m.Method)
}

func TestUsageMonitor_InstrumentPanicIsRecordedAndRepanics(t *testing.T) {
	u := newTestUsage()

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = u.Instrument("/chat", "POST")(context.Background(), func(context.Context) error { panic("kaboom") })
	})

	m := u.Snapshot()[0]
	assert.Equal(t, 500, m.StatusCode)
	assert.Equal(t, "panic: kaboom", m.ErrorMessage)
}

func TestUsageMonitor_SamplerFailureFailsOpen(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewEventLogger(events.Options{Level: "debug", Writer: &buf})
	failing := sysstats.SamplerFunc(func(context.Context) (sysstats.Snapshot, error) {
		return sysstats.Snapshot{}, errors.New("no /proc")
	})
	u := NewUsageMonitor("developer", WithSampler(failing), WithLogger(logger))

	err := u.Instrument("/chat", "POST")(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)

	m := u.Snapshot()[0]
	assert.Equal(t, 200, m.StatusCode)
	assert.Zero(t, m.CPUPercent)
	assert.Contains(t, buf.String(), "resource_sample_failed")
}

func TestUsageMonitor_PanickingSamplerDoesNotMaskResult(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewEventLoggerWithWriter(&buf)
	broken := sysstats.SamplerFunc(func(context.Context) (sysstats.Snapshot, error) { panic("sampler bug") })
	u := NewUsageMonitor("developer", WithSampler(broken), WithLogger(logger))
	want := errors.New("upstream")

	err := u.Instrument("/chat", "POST")(context.Background(), func(context.Context) error { return want })
	assert.Same(t, want, err)
	assert.Contains(t, buf.String(), "instrumentation_failure")
}

func TestUsageMonitor_RequestInfoFromContext(t *testing.T) {
	u := newTestUsage()
	info := &RequestInfo{SessionID: "sess-42", UserAgent: "curl/8", IPAddress: "10.0.0.7", RequestSize: 64}
	ctx := WithRequestInfo(context.Background(), info)

	err := u.Instrument("/chat", "POST")(ctx, func(context.Context) error {
		info.ResponseSize = 512
		return nil
	})
	require.NoError(t, err)

	m := u.Snapshot()[0]
	assert.Equal(t, "sess-42", m.SessionID)
	assert.Equal(t, "curl/8", m.UserAgent)
	assert.Equal(t, "10.0.0.7", m.IPAddress)
	assert.EqualValues(t, 64, m.RequestSize)
	assert.EqualValues(t, 512, m.ResponseSize)
}

func TestUsageMonitor_InstrumentWebSocket(t *testing.T) {
	u := newTestUsage()
	require.NoError(t, u.InstrumentWebSocket("/ws")(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, MethodWebSocket, u.Snapshot()[0].Method)
}

func TestUsageMonitor_EndpointStats(t *testing.T) {
	u := newTestUsage(WithCapacity(2))
	u.Record(UsageMetric{Endpoint: "/chat", StatusCode: 200, Duration: time.Second, Timestamp: epoch})
	u.Record(UsageMetric{Endpoint: "/chat", StatusCode: 500, Duration: 3 * time.Second, Timestamp: epoch.Add(time.Minute)})
	u.Record(UsageMetric{Endpoint: "/health", StatusCode: 200, Duration: 10 * time.Millisecond, Timestamp: epoch})

	stats := u.EndpointStats()
	require.Contains(t, stats, "/chat")

	chat := stats["/chat"]
	assert.EqualValues(t, 2, chat.TotalRequests, "counters outlive the bounded history")
	assert.EqualValues(t, 1, chat.SuccessCount)
	assert.EqualValues(t, 1, chat.ErrorCount)
	assert.InDelta(t, 4.0, chat.TotalDuration, 1e-9)
	assert.InDelta(t, 2.0, chat.AvgDuration, 1e-9)
	assert.Equal(t, epoch.Add(time.Minute), chat.LastRequest)
	assert.EqualValues(t, 1, stats["/health"].TotalRequests)
}

func TestTrack_ReturnsValue(t *testing.T) {
	u := newTestUsage()

	got, err := Track(context.Background(), u.Instrument("/answer", "GET"), func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, u.Len())
}

func TestUsageMonitor_ConcurrentRecording(t *testing.T) {
	const workers, perWorker = 16, 250
	u := newTestUsage(WithCapacity(workers * perWorker))
	wrap := u.Instrument("/chat", "POST")

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if i%2 == 0 {
					_ = wrap(context.Background(), func(context.Context) error { return nil })
				} else {
					u.Record(UsageMetric{Endpoint: "/direct", StatusCode: 200})
				}
				_ = u.Summary()
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, u.Len())
	assert.Equal(t, workers*perWorker, u.Summary().TotalRequests)
}
