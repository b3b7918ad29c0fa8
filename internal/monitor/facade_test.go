package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bc-dunia/agentmon/internal/sysstats"
	amerr "github.com/bc-dunia/agentmon/pkg/errors"
)

func newTestFacade(t *testing.T, agent string, cfg FacadeConfig) *Facade {
	t.Helper()
	if cfg.Sampler == nil {
		cfg.Sampler = sysstats.Static(10, 20)
	}
	f, err := NewFacade(agent, cfg)
	require.NoError(t, err)
	return f
}

func TestFacade_StatusEmpty(t *testing.T) {
	f := newTestFacade(t, "gossipqueen", FacadeConfig{})

	st := f.Status()
	assert.Equal(t, "gossipqueen", st.Agent)
	assert.True(t, st.UsageMonitoring.Active)
	assert.Zero(t, st.UsageMonitoring.TotalRequestsTracked)
	assert.True(t, st.AlertSystem.Active)
	assert.Zero(t, st.AlertSystem.TotalAlerts)
	assert.True(t, st.LatencyMonitoring.Active)
	assert.Equal(t, GradeExcellent, st.LatencyMonitoring.CurrentPerformance.PerformanceGrade)

	raw, err := json.Marshal(st)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "usage_monitoring")
	assert.Contains(t, decoded, "alert_system")
	latency, ok := decoded["latency_monitoring"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, latency, "current_performance")
}

func TestFacade_StatusReflectsMonitors(t *testing.T) {
	f := newTestFacade(t, "developer", FacadeConfig{})
	ctx := context.Background()

	handler := func(ctx context.Context) error {
		return f.Latency.Measure("generate")(ctx, func(context.Context) error { return nil })
	}
	require.NoError(t, f.Usage.Instrument("/chat", "POST")(ctx, handler))
	_ = f.Usage.Instrument("/chat", "POST")(ctx, func(context.Context) error { return errors.New("x") })

	a1, err := f.Alerts.Warning(ctx, "w", "m", nil)
	require.NoError(t, err)
	_, err = f.Alerts.Critical(ctx, "c", "m", nil)
	require.NoError(t, err)
	_, err = f.Alerts.Resolve(a1.ID)
	require.NoError(t, err)
	f.Alerts.SetMonitoringActive(false)

	st := f.Status()
	assert.Equal(t, 2, st.UsageMonitoring.TotalRequestsTracked)
	assert.False(t, st.AlertSystem.Active)
	assert.Equal(t, 2, st.AlertSystem.TotalAlerts)
	assert.Equal(t, 1, st.AlertSystem.ActiveAlerts)
	assert.Equal(t, 1, st.LatencyMonitoring.MeasurementsTracked)
}

func TestFacade_StatusIsReadOnly(t *testing.T) {
	f := newTestFacade(t, "developer", FacadeConfig{})
	_ = f.Status()
	_ = f.Status()

	assert.Zero(t, f.Usage.Len())
	assert.Zero(t, f.Latency.Len())
	assert.Zero(t, f.Alerts.Statistics().TotalAlerts)
}

func TestNewFacade_AppliesConfig(t *testing.T) {
	lenient := LenientThresholds()
	f := newTestFacade(t, "developer", FacadeConfig{
		UsageCapacity:   5,
		LatencyCapacity: 7,
		AlertCapacity:   2,
		Thresholds:      &lenient,
	})

	assert.Equal(t, 5, f.Usage.Cap())
	assert.Equal(t, 7, f.Latency.Cap())
	assert.Equal(t, lenient, f.Latency.Thresholds())

	for i := 0; i < 3; i++ {
		_, err := f.Alerts.Warning(context.Background(), "w", "m", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.Alerts.Statistics().TotalAlerts)
}

func TestNewFacade_InvalidThresholds(t *testing.T) {
	_, err := NewFacade("developer", FacadeConfig{Thresholds: &Thresholds{}})
	assert.True(t, amerr.HasCode(err, amerr.CodeMonitorThresholdsInvalid))
}

func TestFacades_AreIndependent(t *testing.T) {
	a := newTestFacade(t, "developer", FacadeConfig{})
	b := newTestFacade(t, "gossipqueen", FacadeConfig{})

	a.Usage.Record(UsageMetric{Endpoint: "/chat", StatusCode: 200})
	_, err := a.Alerts.Critical(context.Background(), "c", "m", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, a.Usage.Len())
	assert.Zero(t, b.Usage.Len())
	assert.Zero(t, b.Alerts.Statistics().TotalAlerts)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	dev := newTestFacade(t, "developer", FacadeConfig{})
	cs := newTestFacade(t, "customer_success", FacadeConfig{})
	require.NoError(t, r.Register(dev))
	require.NoError(t, r.Register(cs))

	err := r.Register(newTestFacade(t, "developer", FacadeConfig{}))
	assert.True(t, amerr.IsConflict(err))

	assert.Equal(t, []string{"customer_success", "developer"}, r.Agents())

	got, err := r.Get("developer")
	require.NoError(t, err)
	assert.Same(t, dev, got)

	_, err = r.Get("nobody")
	assert.True(t, amerr.IsNotFound(err))
}

func TestRegistry_StatusAndCounts(t *testing.T) {
	r := NewRegistry()
	dev := newTestFacade(t, "developer", FacadeConfig{})
	cs := newTestFacade(t, "customer_success", FacadeConfig{})
	require.NoError(t, r.Register(dev))
	require.NoError(t, r.Register(cs))

	_, err := dev.Alerts.Critical(context.Background(), "c", "m", nil)
	require.NoError(t, err)
	w, err := cs.Alerts.Warning(context.Background(), "w", "m", nil)
	require.NoError(t, err)
	_, err = cs.Alerts.Resolve(w.ID)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"developer": 1, "customer_success": 0}, r.ActiveAlertCounts())

	ps := r.Status(epoch)
	require.Len(t, ps.Agents, 2)
	assert.Equal(t, "customer_success", ps.Agents[0].Agent)
	assert.Equal(t, 2, ps.TotalAlerts)
	assert.Equal(t, 1, ps.ActiveAlerts)
	assert.Equal(t, epoch, ps.Timestamp)

	assert.Equal(t, 1, r.PruneResolved(time.Now().Add(time.Hour)))
}

func TestMonitorDefaults(t *testing.T) {
	f := newTestFacade(t, "developer", FacadeConfig{})
	assert.Equal(t, DefaultUsageCapacity, f.Usage.Cap())
	assert.Equal(t, DefaultLatencyCapacity, f.Latency.Cap())
	assert.Equal(t, DefaultThresholds(), f.Latency.Thresholds())

	for i := 0; i < DefaultAlertCapacity+1; i++ {
		_, err := f.Alerts.Warning(context.Background(), "w", "m", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, DefaultAlertCapacity, f.Alerts.Statistics().TotalAlerts)
}
