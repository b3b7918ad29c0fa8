package monitor

import (
	"sort"
	"sync"
	"time"

	amerr "github.com/bc-dunia/agentmon/pkg/errors"
)

// Registry holds the facades built at startup, keyed by agent.
type Registry struct {
	mu      sync.RWMutex
	facades map[string]*Facade
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{facades: make(map[string]*Facade)}
}

// Register adds f. Registering an agent twice is a conflict.
func (r *Registry) Register(f *Facade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.facades[f.Agent()]; exists {
		return amerr.New(amerr.CodeMonitorAgentConflict, "agent already registered", amerr.FieldAgent(f.Agent()))
	}
	r.facades[f.Agent()] = f
	return nil
}

// Get returns the facade for agent.
func (r *Registry) Get(agent string) (*Facade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.facades[agent]
	if !ok {
		return nil, amerr.New(amerr.CodeMonitorAgentNotFound, "unknown agent", amerr.FieldAgent(agent))
	}
	return f, nil
}

// Agents returns registered agent names, sorted.
func (r *Registry) Agents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.facades))
	for name := range r.facades {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Facades returns registered facades sorted by agent.
func (r *Registry) Facades() []*Facade {
	names := r.Agents()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Facade, 0, len(names))
	for _, name := range names {
		if f, ok := r.facades[name]; ok {
			out = append(out, f)
		}
	}
	return out
}

// ActiveAlertCounts returns unresolved alert counts per agent.
func (r *Registry) ActiveAlertCounts() map[string]int {
	out := make(map[string]int)
	for _, f := range r.Facades() {
		out[f.Agent()] = f.Alerts.ActiveCount()
	}
	return out
}

// PruneResolved drops resolved alerts older than before from every agent.
func (r *Registry) PruneResolved(before time.Time) int {
	removed := 0
	for _, f := range r.Facades() {
		removed += f.Alerts.PruneResolved(before)
	}
	return removed
}

// PlatformStatus is the cross-agent report.
type PlatformStatus struct {
	Agents       []Status  `json:"agents"`
	TotalAlerts  int       `json:"total_alerts"`
	ActiveAlerts int       `json:"active_alerts"`
	Timestamp    time.Time `json:"timestamp"`
}

// Status reports every agent.
func (r *Registry) Status(now time.Time) PlatformStatus {
	ps := PlatformStatus{Agents: []Status{}, Timestamp: now}
	for _, f := range r.Facades() {
		st := f.Status()
		ps.Agents = append(ps.Agents, st)
		ps.TotalAlerts += st.AlertSystem.TotalAlerts
		ps.ActiveAlerts += st.AlertSystem.ActiveAlerts
	}
	return ps
}
