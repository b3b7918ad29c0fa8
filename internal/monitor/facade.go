package monitor

import (
	"time"

	"github.com/bc-dunia/agentmon/internal/events"
	"github.com/bc-dunia/agentmon/internal/otel"
	"github.com/bc-dunia/agentmon/internal/sysstats"
)

// FacadeConfig sizes the monitors of one agent. Zero values take defaults.
type FacadeConfig struct {
	UsageCapacity   int
	LatencyCapacity int
	AlertCapacity   int
	RecentWindow    int
	Thresholds      *Thresholds

	Logger    *events.EventLogger
	Tracer    *otel.Tracer
	Metrics   *otel.Metrics
	Sampler   sysstats.Sampler
	Notifiers []Notifier
	Clock     func() time.Time
}

// Facade composes the usage, latency and alert monitors of one agent.
type Facade struct {
	agent   string
	Usage   *UsageMonitor
	Latency *LatencyMonitor
	Alerts  *AlertManager
}

// NewFacade builds the three monitors for agent.
func NewFacade(agent string, cfg FacadeConfig) (*Facade, error) {
	var common []Option
	if cfg.Logger != nil {
		common = append(common, WithLogger(cfg.Logger.ForAgent(agent)))
	}
	if cfg.Tracer != nil {
		common = append(common, WithTracer(cfg.Tracer))
	}
	if cfg.Metrics != nil {
		common = append(common, WithMetrics(cfg.Metrics))
	}
	if cfg.Clock != nil {
		common = append(common, WithClock(cfg.Clock))
	}

	usageOpts := append(append([]Option(nil), common...), WithCapacity(cfg.UsageCapacity))
	if cfg.Sampler != nil {
		usageOpts = append(usageOpts, WithSampler(cfg.Sampler))
	}

	latencyOpts := append(append([]Option(nil), common...),
		WithCapacity(cfg.LatencyCapacity), WithRecentWindow(cfg.RecentWindow))
	if cfg.Thresholds != nil {
		latencyOpts = append(latencyOpts, WithThresholds(*cfg.Thresholds))
	}
	latency, err := NewLatencyMonitor(agent, latencyOpts...)
	if err != nil {
		return nil, err
	}

	alertOpts := append(append([]Option(nil), common...), WithCapacity(cfg.AlertCapacity))
	for _, n := range cfg.Notifiers {
		alertOpts = append(alertOpts, WithNotifier(n))
	}

	return &Facade{
		agent:   agent,
		Usage:   NewUsageMonitor(agent, usageOpts...),
		Latency: latency,
		Alerts:  NewAlertManager(agent, alertOpts...),
	}, nil
}

// Agent returns the agent identity.
func (f *Facade) Agent() string {
	return f.agent
}

// UsageStatus is the usage section of Status.
type UsageStatus struct {
	Active               bool `json:"active"`
	TotalRequestsTracked int  `json:"total_requests_tracked"`
}

// AlertSystemStatus is the alert section of Status.
type AlertSystemStatus struct {
	Active       bool `json:"active"`
	TotalAlerts  int  `json:"total_alerts"`
	ActiveAlerts int  `json:"active_alerts"`
}

// LatencyStatus is the latency section of Status.
type LatencyStatus struct {
	Active              bool        `json:"active"`
	MeasurementsTracked int         `json:"measurements_tracked"`
	CurrentPerformance  Performance `json:"current_performance"`
}

// Status is the per-agent monitoring report.
type Status struct {
	Agent             string            `json:"agent"`
	UsageMonitoring   UsageStatus       `json:"usage_monitoring"`
	AlertSystem       AlertSystemStatus `json:"alert_system"`
	LatencyMonitoring LatencyStatus     `json:"latency_monitoring"`
}

// Status reads the three monitors. It changes nothing.
func (f *Facade) Status() Status {
	stats := f.Alerts.Statistics()
	return Status{
		Agent: f.agent,
		UsageMonitoring: UsageStatus{
			Active:               true,
			TotalRequestsTracked: f.Usage.Len(),
		},
		AlertSystem: AlertSystemStatus{
			Active:       f.Alerts.MonitoringActive(),
			TotalAlerts:  stats.TotalAlerts,
			ActiveAlerts: stats.ActiveAlerts,
		},
		LatencyMonitoring: LatencyStatus{
			Active:              true,
			MeasurementsTracked: f.Latency.Len(),
			CurrentPerformance:  f.Latency.CurrentPerformance(),
		},
	}
}
