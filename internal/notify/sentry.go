// Package notify forwards stored alerts to external services.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/bc-dunia/agentmon/internal/monitor"
	amerr "github.com/bc-dunia/agentmon/pkg/errors"
)

const defaultFlushTimeout = 2 * time.Second

// SentryConfig configures a SentryNotifier.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
	// MinSeverity is the lowest severity forwarded. Empty means high.
	MinSeverity  monitor.AlertSeverity
	FlushTimeout time.Duration
	// Transport overrides the HTTP transport; tests use it to capture events.
	Transport sentry.Transport
}

// SentryNotifier sends alerts at or above a severity as Sentry messages.
// It owns its own hub and never touches the global Sentry client.
type SentryNotifier struct {
	hub          *sentry.Hub
	minSeverity  monitor.AlertSeverity
	flushTimeout time.Duration
}

// NewSentryNotifier creates a notifier bound to cfg.DSN.
func NewSentryNotifier(cfg SentryConfig) (*SentryNotifier, error) {
	if cfg.MinSeverity == "" {
		cfg.MinSeverity = monitor.SeverityHigh
	}
	if !cfg.MinSeverity.Valid() {
		return nil, amerr.Errorf(amerr.CodeConfigValidateInvalidValue, "unknown sentry min severity %q", cfg.MinSeverity)
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = defaultFlushTimeout
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		SampleRate:  1.0,
		Transport:   cfg.Transport,
	})
	if err != nil {
		return nil, amerr.Wrap(err, amerr.CodeConfigValidateInvalidValue, "create sentry client")
	}

	return &SentryNotifier{
		hub:          sentry.NewHub(client, sentry.NewScope()),
		minSeverity:  cfg.MinSeverity,
		flushTimeout: cfg.FlushTimeout,
	}, nil
}

func (n *SentryNotifier) Name() string {
	return "sentry"
}

// Notify captures alert as a message. Alerts below the minimum severity are
// skipped without error.
func (n *SentryNotifier) Notify(ctx context.Context, alert monitor.Alert) error {
	if alert.Severity.Rank() < n.minSeverity.Rank() {
		return nil
	}

	hub := n.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetLevel(levelFor(alert.Severity))
		scope.SetTag("agent", alert.Agent)
		scope.SetTag("alert_type", string(alert.Type))
		scope.SetTag("severity", string(alert.Severity))
		scope.SetTag("alert_id", alert.ID)
		scope.SetFingerprint([]string{alert.Agent, string(alert.Type)})

		extra := sentry.Context{
			"message":   alert.Message,
			"timestamp": alert.Timestamp.Format(time.RFC3339Nano),
		}
		for k, v := range alert.Metrics {
			extra[k] = v
		}
		scope.SetContext("alert", extra)
	})

	if id := hub.CaptureMessage(fmt.Sprintf("[%s] %s", alert.Agent, alert.Title)); id == nil {
		return amerr.New(amerr.CodeAlertNotifyFailure, "sentry dropped alert",
			amerr.FieldAgent(alert.Agent), amerr.FieldAlertID(alert.ID))
	}
	return nil
}

// Flush waits for queued events up to the configured timeout.
func (n *SentryNotifier) Flush() bool {
	return n.hub.Flush(n.flushTimeout)
}

func levelFor(s monitor.AlertSeverity) sentry.Level {
	switch s {
	case monitor.SeverityLow:
		return sentry.LevelInfo
	case monitor.SeverityMedium:
		return sentry.LevelWarning
	case monitor.SeverityHigh:
		return sentry.LevelError
	case monitor.SeverityCritical:
		return sentry.LevelFatal
	}
	return sentry.LevelInfo
}
