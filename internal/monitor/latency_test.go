package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerr "github.com/bc-dunia/agentmon/pkg/errors"
)

func newTestLatency(t *testing.T, opts ...Option) *LatencyMonitor {
	t.Helper()
	l, err := NewLatencyMonitor("developer", opts...)
	require.NoError(t, err)
	return l
}

func recordSeconds(l *LatencyMonitor, secs ...float64) {
	for _, s := range secs {
		l.Record(LatencyMeasurement{
			Operation: "generate",
			Duration:  time.Duration(s * float64(time.Second)),
			Success:   true,
		})
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		name       string
		thresholds Thresholds
		durations  []float64
		want       PerformanceGrade
		wantMean   float64
	}{
		{"empty", DefaultThresholds(), nil, GradeExcellent, 0},
		{"well under first bound", DefaultThresholds(), []float64{0.05, 0.05}, GradeExcellent, 0.05},
		{"first boundary is inclusive", DefaultThresholds(), []float64{0.1, 0.1}, GradeExcellent, 0.1},
		{"just over first boundary", DefaultThresholds(), []float64{0.11}, GradeGood, 0.11},
		{"acceptable", DefaultThresholds(), []float64{0.6, 1.0}, GradeAcceptable, 0.8},
		{"poor boundary", DefaultThresholds(), []float64{2.0}, GradePoor, 2.0},
		{"default table overflows above 2s", DefaultThresholds(), []float64{3.0}, GradeUnacceptable, 3.0},
		{"lenient table keeps 3s poor", LenientThresholds(), []float64{3.0}, GradePoor, 3.0},
		{"lenient table overflows above 5s", LenientThresholds(), []float64{5.5}, GradeUnacceptable, 5.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grade, mean := Grade(tt.thresholds, tt.durations)
			assert.Equal(t, tt.want, grade)
			assert.InDelta(t, tt.wantMean, mean, 1e-9)
		})
	}
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.NoError(t, LenientThresholds().Validate())

	bad := []Thresholds{
		{Overflow: GradeUnacceptable},
		{Bounds: []Bound{{GradeGood, 1}}},
		{Bounds: []Bound{{GradeGood, 1}, {GradePoor, 1}}, Overflow: GradeUnacceptable},
		{Bounds: []Bound{{GradeGood, 0}}, Overflow: GradeUnacceptable},
		{Bounds: []Bound{{"", 1}}, Overflow: GradeUnacceptable},
		{Bounds: []Bound{{GradeExcellent, math.NaN()}, {GradeGood, 0.5}}, Overflow: GradeUnacceptable},
		{Bounds: []Bound{{GradeGood, 0.5}, {GradePoor, math.Inf(1)}}, Overflow: GradeUnacceptable},
	}
	for i, th := range bad {
		err := th.Validate()
		require.Error(t, err, "case %d", i)
		assert.Equal(t, amerr.CodeMonitorThresholdsInvalid, amerr.CodeOf(err))
	}
}

func TestParseThresholds(t *testing.T) {
	th, err := ParseThresholds("excellent=0.1, good=0.5,acceptable=1.0,poor=5", "unacceptable")
	require.NoError(t, err)
	assert.Equal(t, LenientThresholds(), th)
	assert.Equal(t, "excellent=0.1,good=0.5,acceptable=1,poor=5", th.String())

	_, err = ParseThresholds("excellent", "unacceptable")
	assert.True(t, amerr.IsInvalidInput(err))

	_, err = ParseThresholds("excellent=fast", "unacceptable")
	assert.True(t, amerr.IsInvalidInput(err))

	_, err = ParseThresholds("good=1,excellent=0.1", "unacceptable")
	assert.Error(t, err)

	_, err = ParseThresholds("excellent=NaN,good=0.5", "unacceptable")
	assert.True(t, amerr.HasCode(err, amerr.CodeMonitorThresholdsInvalid))

	_, err = ParseThresholds("excellent=0.1,good=+Inf", "unacceptable")
	assert.True(t, amerr.HasCode(err, amerr.CodeMonitorThresholdsInvalid))
}

func TestLatencyMonitor_CurrentPerformanceEmpty(t *testing.T) {
	l := newTestLatency(t)

	perf := l.CurrentPerformance()
	assert.Equal(t, GradeExcellent, perf.PerformanceGrade)
	assert.Zero(t, perf.AvgLatency)

	raw, err := json.Marshal(perf)
	require.NoError(t, err)
	assert.JSONEq(t, `{"performance_grade":"excellent","avg_latency":0}`, string(raw))
}

func TestLatencyMonitor_CurrentPerformanceUsesRecentWindow(t *testing.T) {
	l := newTestLatency(t, WithRecentWindow(3))
	recordSeconds(l, 10, 10, 0.05, 0.05, 0.05)

	perf := l.CurrentPerformance()
	assert.Equal(t, GradeExcellent, perf.PerformanceGrade)
	assert.InDelta(t, 0.05, perf.AvgLatency, 1e-9)
	assert.Equal(t, 3, perf.RecentRequests)
}

func TestLatencyMonitor_DefaultWindowIs100(t *testing.T) {
	l := newTestLatency(t)
	recordSeconds(l, 3.0)
	for i := 0; i < 100; i++ {
		recordSeconds(l, 0.2)
	}

	perf := l.CurrentPerformance()
	assert.Equal(t, 100, perf.RecentRequests)
	assert.Equal(t, GradeGood, perf.PerformanceGrade)
}

func TestLatencyMonitor_PinnedTables(t *testing.T) {
	strict := newTestLatency(t)
	recordSeconds(strict, 3.0)
	assert.Equal(t, GradeUnacceptable, strict.CurrentPerformance().PerformanceGrade)

	lenient := newTestLatency(t, WithThresholds(LenientThresholds()))
	recordSeconds(lenient, 3.0)
	assert.Equal(t, GradePoor, lenient.CurrentPerformance().PerformanceGrade)
}

func TestNewLatencyMonitor_RejectsInvalidThresholds(t *testing.T) {
	_, err := NewLatencyMonitor("developer", WithThresholds(Thresholds{}))
	require.Error(t, err)
	assert.True(t, amerr.HasCode(err, amerr.CodeMonitorThresholdsInvalid))
}

func TestLatencyMonitor_MeasureFailure(t *testing.T) {
	l := newTestLatency(t, WithClock(stepClock(epoch, 250*time.Millisecond)))
	want := errors.New("vector store unavailable")

	err := l.Measure("retrieve")(context.Background(), func(context.Context) error { return want })
	assert.Same(t, want, err)

	got := l.Snapshot()
	require.Len(t, got, 1)
	m := got[0]
	assert.False(t, m.Success)
	assert.NotEmpty(t, m.ErrorMessage)
	assert.Equal(t, "retrieve", m.Operation)
	assert.Equal(t, 250*time.Millisecond, m.Duration)
	assert.Equal(t, m.StartTime.Add(m.Duration), m.EndTime)
}

func TestLatencyMonitor_MeasureSuccessDefaultsOperation(t *testing.T) {
	l := newTestLatency(t)

	v, err := Track(context.Background(), l.Measure(""), func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	m := l.Snapshot()[0]
	assert.True(t, m.Success)
	assert.Equal(t, DefaultOperation, m.Operation)
	assert.NotEmpty(t, m.ID)
}

func TestLatencyMonitor_MeasurePanic(t *testing.T) {
	l := newTestLatency(t)

	assert.Panics(t, func() {
		_ = l.Measure("generate")(context.Background(), func(context.Context) error { panic(errors.New("nil map")) })
	})
	m := l.Snapshot()[0]
	assert.False(t, m.Success)
	assert.Contains(t, m.ErrorMessage, "nil map")
}

func TestLatencyMonitor_CapacityEvictsOldest(t *testing.T) {
	l := newTestLatency(t, WithCapacity(3))
	recordSeconds(l, 1, 2, 3, 4)

	got := l.Snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, 2*time.Second, got[0].Duration)
	assert.Equal(t, 3, l.Cap())
}

func TestLatencyMonitor_OperationStats(t *testing.T) {
	l := newTestLatency(t)
	l.Record(LatencyMeasurement{Operation: "generate", Duration: 100 * time.Millisecond, Success: true})
	l.Record(LatencyMeasurement{Operation: "generate", Duration: 300 * time.Millisecond, Success: false})
	l.Record(LatencyMeasurement{Operation: "embed", Duration: 50 * time.Millisecond, Success: true})

	stats := l.OperationStats()
	gen := stats["generate"]
	assert.EqualValues(t, 2, gen.Count)
	assert.EqualValues(t, 1, gen.ErrorCount)
	assert.InDelta(t, 0.2, gen.AvgLatency, 1e-9)
	assert.InDelta(t, 0.1, gen.MinLatency, 1e-9)
	assert.InDelta(t, 0.3, gen.MaxLatency, 1e-9)
	assert.EqualValues(t, 1, stats["embed"].Count)
}

func TestLatencyMonitor_ConcurrentRecording(t *testing.T) {
	const workers, perWorker = 8, 100
	l := newTestLatency(t, WithCapacity(workers*perWorker))
	wrap := l.Measure("generate")

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_ = wrap(context.Background(), func(context.Context) error { return nil })
				_ = l.CurrentPerformance()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, l.Len())
	assert.EqualValues(t, workers*perWorker, l.OperationStats()["generate"].Count)
}
