package monitor

import (
	"time"

	"github.com/bc-dunia/agentmon/internal/events"
	"github.com/bc-dunia/agentmon/internal/otel"
	"github.com/bc-dunia/agentmon/internal/sysstats"
)

// Option configures a monitor. Options that do not apply to a given monitor
// are ignored by it.
type Option func(*options)

type options struct {
	capacity     int
	recentWindow int
	thresholds   *Thresholds
	logger       *events.EventLogger
	tracer       *otel.Tracer
	metrics      *otel.Metrics
	sampler      sysstats.Sampler
	notifiers    []Notifier
	nowFunc      func() time.Time
}

func buildOptions(capacity int, opts []Option) options {
	o := options{
		capacity: capacity,
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = events.NoopEventLogger()
	}
	if o.tracer == nil {
		o.tracer = otel.NoopTracer()
	}
	if o.metrics == nil {
		o.metrics = otel.NoopMetrics()
	}
	return o
}

// WithCapacity bounds the monitor's history.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithRecentWindow sets how many recent latency measurements are graded.
func WithRecentWindow(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.recentWindow = n
		}
	}
}

// WithThresholds replaces the latency grading table.
func WithThresholds(t Thresholds) Option {
	return func(o *options) {
		o.thresholds = &t
	}
}

// WithLogger sets the event logger.
func WithLogger(l *events.EventLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTracer wraps instrumented calls in spans.
func WithTracer(t *otel.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithMetrics mirrors recordings into OpenTelemetry instruments.
func WithMetrics(m *otel.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithSampler sets the resource sampler used by usage instrumentation.
func WithSampler(s sysstats.Sampler) Option {
	return func(o *options) {
		o.sampler = s
	}
}

// WithNotifier adds an alert notifier.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifiers = append(o.notifiers, n)
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.nowFunc = now
	}
}
