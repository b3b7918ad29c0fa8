package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bc-dunia/agentmon/internal/events"
	"github.com/bc-dunia/agentmon/internal/otel"
	amerr "github.com/bc-dunia/agentmon/pkg/errors"
)

// Notifier receives every stored alert. Notifiers run after the alert is
// stored and outside the manager's lock; their failures are only logged.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert Alert) error
}

// AlertStatistics counts stored alerts.
type AlertStatistics struct {
	TotalAlerts  int            `json:"total_alerts"`
	ActiveAlerts int            `json:"active_alerts"`
	BySeverity   map[string]int `json:"by_severity,omitempty"`
}

// AlertManager stores alerts for one agent in creation order.
//
// The log is bounded: when full, the oldest resolved alert is evicted, and
// only if none is resolved does the oldest active alert go.
type AlertManager struct {
	agent    string
	capacity int

	mu     sync.Mutex
	alerts []*Alert
	byID   map[string]*Alert
	active bool

	notifiers []Notifier
	logger    *events.EventLogger
	metrics   *otel.Metrics
	nowFunc   func() time.Time
}

// NewAlertManager creates an alert manager for agent with monitoring active.
func NewAlertManager(agent string, opts ...Option) *AlertManager {
	o := buildOptions(DefaultAlertCapacity, opts)
	return &AlertManager{
		agent:     agent,
		capacity:  o.capacity,
		byID:      make(map[string]*Alert),
		active:    true,
		notifiers: o.notifiers,
		logger:    o.logger,
		metrics:   o.metrics,
		nowFunc:   o.nowFunc,
	}
}

// Agent returns the agent identity.
func (a *AlertManager) Agent() string {
	return a.agent
}

// AddNotifier registers n for alerts triggered from now on.
func (a *AlertManager) AddNotifier(n Notifier) {
	if n == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifiers = append(a.notifiers, n)
}

// SetMonitoringActive opens or closes the trigger gate.
func (a *AlertManager) SetMonitoringActive(active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = active
}

// MonitoringActive reports whether triggers are accepted.
func (a *AlertManager) MonitoringActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Trigger stores a new unresolved alert and returns it. It fails with a
// suppressed error while monitoring is inactive, and with an invalid input
// error for unknown types or severities or non-scalar metric values.
func (a *AlertManager) Trigger(ctx context.Context, alertType AlertType, severity AlertSeverity, title, message string, metrics map[string]any) (Alert, error) {
	if !alertType.Valid() {
		return Alert{}, amerr.New(amerr.CodeAlertInvalidInput,
			fmt.Sprintf("unknown alert type %q", alertType), amerr.FieldAgent(a.agent))
	}
	if !severity.Valid() {
		return Alert{}, amerr.New(amerr.CodeAlertInvalidInput,
			fmt.Sprintf("unknown alert severity %q", severity), amerr.FieldAgent(a.agent))
	}
	for k, v := range metrics {
		if !isScalar(v) {
			return Alert{}, amerr.New(amerr.CodeAlertInvalidInput,
				fmt.Sprintf("metric %q must be a string, number or bool, got %T", k, v),
				amerr.FieldAgent(a.agent), amerr.Field("metric", k))
		}
	}

	alert := &Alert{
		ID:        "alert_" + uuid.NewString(),
		Type:      alertType,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Timestamp: a.nowFunc(),
		Agent:     a.agent,
		Metrics:   map[string]any{},
	}
	for k, v := range metrics {
		alert.Metrics[k] = v
	}

	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		a.logger.LogAlertSuppressed(string(alertType), string(severity), title)
		return Alert{}, amerr.New(amerr.CodeAlertSuppressed, "alert monitoring is inactive", amerr.FieldAgent(a.agent))
	}
	if len(a.alerts) >= a.capacity {
		a.evictLocked()
	}
	a.alerts = append(a.alerts, alert)
	a.byID[alert.ID] = alert
	out := alert.clone()
	notifiers := append([]Notifier(nil), a.notifiers...)
	a.mu.Unlock()

	a.logger.LogAlertTriggered(out.ID, string(out.Type), string(out.Severity), out.Title)
	a.metrics.RecordAlert(ctx, a.agent, string(out.Type), string(out.Severity))
	a.notify(ctx, notifiers, out)

	return out, nil
}

// Warning triggers a medium-severity system overload alert.
func (a *AlertManager) Warning(ctx context.Context, title, message string, metrics map[string]any) (Alert, error) {
	return a.Trigger(ctx, AlertSystemOverload, SeverityMedium, title, message, metrics)
}

// Critical triggers a critical system overload alert.
func (a *AlertManager) Critical(ctx context.Context, title, message string, metrics map[string]any) (Alert, error) {
	return a.Trigger(ctx, AlertSystemOverload, SeverityCritical, title, message, metrics)
}

func (a *AlertManager) evictLocked() {
	victim := 0
	for i, al := range a.alerts {
		if al.Resolved {
			victim = i
			break
		}
	}
	al := a.alerts[victim]
	a.alerts = append(a.alerts[:victim], a.alerts[victim+1:]...)
	delete(a.byID, al.ID)
	a.logger.LogAlertEvicted(al.ID, al.Resolved)
}

func (a *AlertManager) notify(ctx context.Context, notifiers []Notifier, alert Alert) {
	for _, n := range notifiers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.LogInstrumentationFailure("notifier", n.Name(), r)
				}
			}()
			if err := n.Notify(ctx, alert); err != nil {
				a.logger.LogNotifyFailed(n.Name(), alert.ID, err)
			}
		}()
	}
}

// Resolve marks the alert resolved. Resolving twice is a no-op that returns
// the alert unchanged.
func (a *AlertManager) Resolve(id string) (Alert, error) {
	a.mu.Lock()
	al, ok := a.byID[id]
	if !ok {
		a.mu.Unlock()
		return Alert{}, amerr.New(amerr.CodeAlertNotFound, "alert not found",
			amerr.FieldAgent(a.agent), amerr.FieldAlertID(id))
	}
	if al.Resolved {
		out := al.clone()
		a.mu.Unlock()
		return out, nil
	}
	now := a.nowFunc()
	al.Resolved = true
	al.ResolvedAt = &now
	out := al.clone()
	a.mu.Unlock()

	a.logger.LogAlertResolved(out.ID, now.Sub(out.Timestamp))
	return out, nil
}

// Get returns the alert with id.
func (a *AlertManager) Get(id string) (Alert, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	al, ok := a.byID[id]
	if !ok {
		return Alert{}, amerr.New(amerr.CodeAlertNotFound, "alert not found",
			amerr.FieldAgent(a.agent), amerr.FieldAlertID(id))
	}
	return al.clone(), nil
}

// ActiveAlerts returns unresolved alerts in creation order.
func (a *AlertManager) ActiveAlerts() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Alert, 0, len(a.alerts))
	for _, al := range a.alerts {
		if !al.Resolved {
			out = append(out, al.clone())
		}
	}
	return out
}

// Alerts returns every stored alert in creation order.
func (a *AlertManager) Alerts() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Alert, len(a.alerts))
	for i, al := range a.alerts {
		out[i] = al.clone()
	}
	return out
}

// ActiveCount returns the number of unresolved alerts.
func (a *AlertManager) ActiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, al := range a.alerts {
		if !al.Resolved {
			n++
		}
	}
	return n
}

// Statistics counts stored and unresolved alerts, and unresolved alerts by
// severity.
func (a *AlertManager) Statistics() AlertStatistics {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AlertStatistics{TotalAlerts: len(a.alerts)}
	for _, al := range a.alerts {
		if al.Resolved {
			continue
		}
		stats.ActiveAlerts++
		if stats.BySeverity == nil {
			stats.BySeverity = make(map[string]int)
		}
		stats.BySeverity[string(al.Severity)]++
	}
	return stats
}

// PruneResolved drops resolved alerts whose resolution is older than before
// and returns how many were removed.
func (a *AlertManager) PruneResolved(before time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.alerts[:0]
	removed := 0
	for _, al := range a.alerts {
		if al.Resolved && al.ResolvedAt != nil && al.ResolvedAt.Before(before) {
			delete(a.byID, al.ID)
			removed++
			continue
		}
		kept = append(kept, al)
	}
	for i := len(kept); i < len(a.alerts); i++ {
		a.alerts[i] = nil
	}
	a.alerts = kept
	return removed
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}
