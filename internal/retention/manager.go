package retention

import (
	"sync"
	"time"

	"github.com/bc-dunia/agentmon/internal/events"
)

// AlertStore is the alert log operation needed by retention.
// *monitor.Registry and *monitor.AlertManager both satisfy it.
type AlertStore interface {
	PruneResolved(before time.Time) int
}

// Manager handles periodic cleanup of resolved alerts.
type Manager struct {
	config    Config
	store     AlertStore
	logger    *events.EventLogger
	stopCh    chan struct{}
	stoppedCh chan struct{}
	mu        sync.Mutex
	running   bool
	nowFunc   func() time.Time
}

// NewManager creates a new retention Manager.
func NewManager(config Config, store AlertStore, logger *events.EventLogger) *Manager {
	if logger == nil {
		logger = events.NoopEventLogger()
	}
	return &Manager{
		config:  config.WithDefaults(),
		store:   store,
		logger:  logger.Named("retention"),
		nowFunc: time.Now,
	}
}

// Start begins the background sweep goroutine. A stopped manager can be
// started again.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.stoppedCh = make(chan struct{})
	go m.run(m.stopCh, m.stoppedCh)
}

// Stop signals the background goroutine to stop and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stopCh, stoppedCh := m.stopCh, m.stoppedCh
	m.mu.Unlock()

	close(stopCh)
	<-stoppedCh
}

func (m *Manager) run(stopCh <-chan struct{}, stoppedCh chan<- struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-stopCh:
			return
		}
	}
}

// Sweep removes resolved alerts older than the TTL and returns the count.
func (m *Manager) Sweep() int {
	if m.store == nil {
		return 0
	}

	cutoff := m.nowFunc().Add(-m.config.ResolvedAlertTTL)
	removed := m.store.PruneResolved(cutoff)
	if removed > 0 {
		m.logger.LogRetentionSweep(removed, m.config.ResolvedAlertTTL)
	}
	return removed
}
