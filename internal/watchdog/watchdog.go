// Package watchdog periodically checks every agent's recent usage and latency
// against threshold rules and raises alerts on breaches.
package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bc-dunia/agentmon/internal/config"
	"github.com/bc-dunia/agentmon/internal/events"
	"github.com/bc-dunia/agentmon/internal/monitor"
)

// Rule names, also used as cooldown keys.
const (
	RuleErrorRate = "error_rate"
	RuleLatency   = "latency"
	RuleCPU       = "cpu"
	RuleMemory    = "memory"
)

// Rules holds breach thresholds. A zero threshold disables its rule.
type Rules struct {
	ErrorRatePercent float64
	LatencySeconds   float64
	CPUPercent       float64
	MemoryPercent    float64

	// MinRequests is the sample size below which the error rate is not judged.
	MinRequests int
	// Window is how many recent usage metrics are inspected.
	Window   int
	Cooldown time.Duration
	Interval time.Duration
}

// DefaultRules returns the stock thresholds.
func DefaultRules() Rules {
	return Rules{
		ErrorRatePercent: config.DefaultErrorRatePercent,
		LatencySeconds:   config.DefaultLatencySeconds,
		CPUPercent:       config.DefaultCPUPercent,
		MemoryPercent:    config.DefaultMemoryPercent,
		MinRequests:      config.DefaultMinRequests,
		Window:           config.DefaultRecentWindow,
		Cooldown:         config.DefaultRuleCooldown,
		Interval:         config.DefaultRuleInterval,
	}
}

// Breach describes one rule crossing its threshold for one agent.
type Breach struct {
	Agent     string
	Rule      string
	Observed  float64
	Threshold float64
	Severity  monitor.AlertSeverity
	// Alerted is false when the breach fell inside the cooldown or the
	// agent's alert gate was closed.
	Alerted bool
	AlertID string
}

// Watchdog evaluates Rules against a Registry.
type Watchdog struct {
	registry *monitor.Registry
	rules    Rules
	logger   *events.EventLogger

	mu        sync.Mutex
	lastFired map[string]time.Time

	nowFunc func() time.Time
}

// New creates a watchdog over registry.
func New(registry *monitor.Registry, rules Rules, logger *events.EventLogger) *Watchdog {
	if logger == nil {
		logger = events.NoopEventLogger()
	}
	if rules.Window <= 0 {
		rules.Window = config.DefaultRecentWindow
	}
	if rules.Interval < config.MinRuleInterval {
		rules.Interval = config.DefaultRuleInterval
	}
	return &Watchdog{
		registry:  registry,
		rules:     rules,
		logger:    logger.Named("watchdog"),
		lastFired: make(map[string]time.Time),
		nowFunc:   time.Now,
	}
}

// Run evaluates on every interval until ctx is done.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.rules.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Evaluate(ctx)
		}
	}
}

// Evaluate runs one pass over every registered agent.
func (w *Watchdog) Evaluate(ctx context.Context) []Breach {
	var breaches []Breach
	for _, f := range w.registry.Facades() {
		breaches = append(breaches, w.evaluateAgent(ctx, f)...)
	}
	return breaches
}

type observation struct {
	rule      string
	observed  float64
	threshold float64
	severity  monitor.AlertSeverity
	alertType monitor.AlertType
	title     string
	unit      string
}

func (w *Watchdog) evaluateAgent(ctx context.Context, f *monitor.Facade) []Breach {
	recent := f.Usage.Recent(w.rules.Window)

	var obs []observation

	if w.rules.ErrorRatePercent > 0 && len(recent) >= w.rules.MinRequests && len(recent) > 0 {
		failed := 0
		for _, m := range recent {
			if m.Failed() {
				failed++
			}
		}
		rate := float64(failed) / float64(len(recent)) * 100
		if rate >= w.rules.ErrorRatePercent {
			obs = append(obs, observation{
				rule: RuleErrorRate, observed: rate, threshold: w.rules.ErrorRatePercent,
				severity:  escalate(rate, w.rules.ErrorRatePercent, monitor.SeverityHigh),
				alertType: monitor.AlertHighErrorRate, title: "High error rate", unit: "%",
			})
		}
	}

	if w.rules.LatencySeconds > 0 {
		perf := f.Latency.CurrentPerformance()
		if perf.RecentRequests > 0 && perf.AvgLatency > w.rules.LatencySeconds {
			obs = append(obs, observation{
				rule: RuleLatency, observed: perf.AvgLatency, threshold: w.rules.LatencySeconds,
				severity:  escalate(perf.AvgLatency, w.rules.LatencySeconds, monitor.SeverityMedium),
				alertType: monitor.AlertSlowResponseTime, title: "Slow response time", unit: "s",
			})
		}
	}

	if len(recent) > 0 {
		var cpu, mem float64
		for _, m := range recent {
			cpu += m.CPUPercent
			mem += m.MemoryPercent
		}
		cpu /= float64(len(recent))
		mem /= float64(len(recent))

		if w.rules.CPUPercent > 0 && cpu >= w.rules.CPUPercent {
			obs = append(obs, observation{
				rule: RuleCPU, observed: cpu, threshold: w.rules.CPUPercent,
				severity: monitor.SeverityHigh, alertType: monitor.AlertHighCPUUsage,
				title: "High CPU usage", unit: "%",
			})
		}
		if w.rules.MemoryPercent > 0 && mem >= w.rules.MemoryPercent {
			obs = append(obs, observation{
				rule: RuleMemory, observed: mem, threshold: w.rules.MemoryPercent,
				severity: monitor.SeverityHigh, alertType: monitor.AlertHighMemoryUsage,
				title: "High memory usage", unit: "%",
			})
		}
	}

	logger := w.logger.ForAgent(f.Agent())
	breaches := make([]Breach, 0, len(obs))
	for _, o := range obs {
		b := Breach{
			Agent:     f.Agent(),
			Rule:      o.rule,
			Observed:  o.observed,
			Threshold: o.threshold,
			Severity:  o.severity,
		}
		if w.claim(f.Agent(), o.rule) {
			alert, err := f.Alerts.Trigger(ctx, o.alertType, o.severity, o.title,
				fmt.Sprintf("%s is %.2f%s, threshold %.2f%s", o.rule, o.observed, o.unit, o.threshold, o.unit),
				map[string]any{
					"rule":      o.rule,
					"observed":  o.observed,
					"threshold": o.threshold,
					"window":    len(recent),
				})
			if err == nil {
				b.Alerted = true
				b.AlertID = alert.ID
			} else {
				w.release(f.Agent(), o.rule)
			}
		}
		logger.LogRuleBreached(o.rule, o.observed, o.threshold, b.Alerted)
		breaches = append(breaches, b)
	}
	return breaches
}

// escalate bumps severity to critical once observed reaches twice the threshold.
func escalate(observed, threshold float64, base monitor.AlertSeverity) monitor.AlertSeverity {
	if observed >= 2*threshold {
		return monitor.SeverityCritical
	}
	return base
}

// claim reserves the agent/rule cooldown slot; it reports false while the
// previous alert is still cooling down.
func (w *Watchdog) claim(agent, rule string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := agent + ":" + rule
	now := w.nowFunc()
	if last, ok := w.lastFired[key]; ok && now.Sub(last) < w.rules.Cooldown {
		return false
	}
	w.lastFired[key] = now
	return true
}

func (w *Watchdog) release(agent, rule string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.lastFired, agent+":"+rule)
}
