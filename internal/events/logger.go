package events

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventLogger provides structured logging for key events in agentmon.
type EventLogger struct {
	logger *zap.Logger
	agent  string
}

// Options configures a new EventLogger.
type Options struct {
	// Level is a zap level name ("debug", "info", "warn", "error"). Default: info.
	Level string
	// Development switches to the human-readable console encoder.
	Development bool
	// Writer receives encoded entries. Default: stdout.
	Writer io.Writer
}

// NewEventLogger creates a new EventLogger with JSON output to stdout.
func NewEventLogger(opts Options) *EventLogger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			level = zapcore.InfoLevel
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if opts.Development {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), level)
	return &EventLogger{logger: zap.New(core)}
}

// NewEventLoggerWithWriter creates a new EventLogger with JSON output to a custom writer.
// Useful for testing or redirecting output.
func NewEventLoggerWithWriter(w io.Writer) *EventLogger {
	return NewEventLogger(Options{Writer: w})
}

// ForAgent returns a child logger with the agent field bound.
func (el *EventLogger) ForAgent(agent string) *EventLogger {
	return &EventLogger{
		logger: el.logger.With(zap.String("agent", agent)),
		agent:  agent,
	}
}

// Named returns a child logger scoped to a component.
func (el *EventLogger) Named(component string) *EventLogger {
	return &EventLogger{
		logger: el.logger.With(zap.String("component", component)),
		agent:  el.agent,
	}
}

// Zap exposes the underlying logger for components that log free-form messages.
func (el *EventLogger) Zap() *zap.Logger {
	return el.logger
}

// Agent returns the bound agent name, if any.
func (el *EventLogger) Agent() string {
	return el.agent
}

// LogAlertTriggered logs a newly recorded alert.
// event: "alert_triggered"
func (el *EventLogger) LogAlertTriggered(alertID, alertType, severity, title string) {
	el.logger.Warn("alert_triggered",
		zap.String("alert_id", alertID),
		zap.String("alert_type", alertType),
		zap.String("severity", severity),
		zap.String("title", title),
	)
}

// LogAlertResolved logs an alert flipped to resolved.
// event: "alert_resolved"
func (el *EventLogger) LogAlertResolved(alertID string, openFor time.Duration) {
	el.logger.Info("alert_resolved",
		zap.String("alert_id", alertID),
		zap.Duration("open_for", openFor),
	)
}

// LogAlertSuppressed logs a trigger dropped because monitoring is inactive.
// event: "alert_suppressed"
func (el *EventLogger) LogAlertSuppressed(alertType, severity, title string) {
	el.logger.Info("alert_suppressed",
		zap.String("alert_type", alertType),
		zap.String("severity", severity),
		zap.String("title", title),
	)
}

// LogAlertEvicted logs an alert dropped from a full alert log.
// event: "alert_evicted"
func (el *EventLogger) LogAlertEvicted(alertID string, resolved bool) {
	el.logger.Debug("alert_evicted",
		zap.String("alert_id", alertID),
		zap.Bool("resolved", resolved),
	)
}

// LogInstrumentationFailure logs a failure inside the monitors themselves.
// The wrapped operation is unaffected.
// event: "instrumentation_failure"
func (el *EventLogger) LogInstrumentationFailure(component, operation string, cause any) {
	el.logger.Error("instrumentation_failure",
		zap.String("monitor", component),
		zap.String("operation", operation),
		zap.Any("cause", cause),
	)
}

// LogResourceSampleFailed logs a failed host CPU/memory read.
// event: "resource_sample_failed"
func (el *EventLogger) LogResourceSampleFailed(err error) {
	el.logger.Debug("resource_sample_failed", zap.Error(err))
}

// LogNotifyFailed logs an alert that could not be forwarded to a notifier.
// event: "notify_failed"
func (el *EventLogger) LogNotifyFailed(notifier, alertID string, err error) {
	el.logger.Warn("notify_failed",
		zap.String("notifier", notifier),
		zap.String("alert_id", alertID),
		zap.Error(err),
	)
}

// LogRuleBreached logs a threshold rule that crossed its limit.
// event: "rule_breached"
func (el *EventLogger) LogRuleBreached(rule string, observed, threshold float64, alerted bool) {
	el.logger.Warn("rule_breached",
		zap.String("rule", rule),
		zap.Float64("observed", observed),
		zap.Float64("threshold", threshold),
		zap.Bool("alerted", alerted),
	)
}

// LogRetentionSweep logs the result of a resolved-alert cleanup pass.
// event: "retention_sweep"
func (el *EventLogger) LogRetentionSweep(removed int, ttl time.Duration) {
	el.logger.Info("retention_sweep",
		zap.Int("removed", removed),
		zap.Duration("ttl", ttl),
	)
}

// LogServerStarted logs the status API coming up.
// event: "server_started"
func (el *EventLogger) LogServerStarted(addr string, agents []string) {
	el.logger.Info("server_started",
		zap.String("addr", addr),
		zap.Strings("agents", agents),
	)
}

// LogServerStopped logs the status API shutting down.
// event: "server_stopped"
func (el *EventLogger) LogServerStopped(reason string) {
	el.logger.Info("server_stopped", zap.String("reason", reason))
}

// LogServerFailed logs the status API stopping on a serve error.
// event: "server_failed"
func (el *EventLogger) LogServerFailed(addr string, err error) {
	el.logger.Error("server_failed", zap.String("addr", addr), zap.Error(err))
}

// Sync flushes buffered entries.
func (el *EventLogger) Sync() error {
	return el.logger.Sync()
}

// NoopEventLogger returns an event logger that discards all events.
// Useful for testing or when event logging is disabled.
func NoopEventLogger() *EventLogger {
	return &EventLogger{logger: zap.NewNop()}
}
