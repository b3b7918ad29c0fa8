package otel

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig holds configuration for the OpenTelemetry metrics mirror.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active. Default: false (no-op).
	Enabled bool

	// ServiceName is the name of the service for metric attribution.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// ExporterType specifies which exporter to use.
	ExporterType ExporterType

	// OTLPEndpoint is the endpoint for OTLP exporters (e.g., "localhost:4317").
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP connections.
	OTLPInsecure bool

	// Attributes are additional attributes to add to all metrics.
	Attributes map[string]string
}

// DefaultMetricsConfig returns a default configuration with metrics disabled.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:      false,
		ServiceName:  defaultServiceName,
		ExporterType: ExporterNone,
	}
}

// ActiveAlertsFunc reports unresolved alert counts keyed by agent.
type ActiveAlertsFunc func() map[string]int

// Metrics mirrors monitor recordings into OpenTelemetry instruments.
type Metrics struct {
	config        *MetricsConfig
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	shutdown      func(context.Context) error
	mu            sync.RWMutex

	activeAlertsSrc   ActiveAlertsFunc
	activeAlertsGauge metric.Int64ObservableGauge
	activeAlertsReg   metric.Registration

	operationDuration metric.Float64Histogram
	operationErrors   metric.Int64Counter
	requestBytes      metric.Int64Counter
	alertCounter      metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with the given configuration.
func NewMetrics(ctx context.Context, cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil {
		cfg = DefaultMetricsConfig()
	}

	m := &Metrics{
		config: cfg,
	}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		m.meterProvider = sdkmetric.NewMeterProvider()
		m.meter = m.meterProvider.Meter(cfg.ServiceName)
		m.shutdown = func(context.Context) error { return nil }
		return m, nil
	}

	exporter, err := m.createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	return newMetricsWithProvider(cfg, mp)
}

func newMetricsWithProvider(cfg *MetricsConfig, mp *sdkmetric.MeterProvider) (*Metrics, error) {
	m := &Metrics{
		config:        cfg,
		meterProvider: mp,
		meter:         mp.Meter(cfg.ServiceName),
		shutdown:      mp.Shutdown,
	}

	if err := m.registerInstruments(); err != nil {
		return nil, fmt.Errorf("failed to register metric instruments: %w", err)
	}

	return m, nil
}

func (m *Metrics) createExporter(ctx context.Context, cfg *MetricsConfig) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()

	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

func (m *Metrics) registerInstruments() error {
	var err error

	m.operationDuration, err = m.meter.Float64Histogram(
		"agentmon.operation.duration",
		metric.WithDescription("Duration of instrumented agent operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create operation duration histogram: %w", err)
	}

	m.operationErrors, err = m.meter.Int64Counter(
		"agentmon.operation.errors",
		metric.WithDescription("Count of failed instrumented operations"),
	)
	if err != nil {
		return fmt.Errorf("failed to create operation error counter: %w", err)
	}

	m.requestBytes, err = m.meter.Int64Counter(
		"agentmon.request.bytes",
		metric.WithDescription("Request and response payload bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create request bytes counter: %w", err)
	}

	m.alertCounter, err = m.meter.Int64Counter(
		"agentmon.alerts",
		metric.WithDescription("Count of triggered alerts by type and severity"),
	)
	if err != nil {
		return fmt.Errorf("failed to create alert counter: %w", err)
	}

	m.activeAlertsGauge, err = m.meter.Int64ObservableGauge(
		"agentmon.alerts.active",
		metric.WithDescription("Unresolved alerts per agent"),
	)
	if err != nil {
		return fmt.Errorf("failed to create active alerts gauge: %w", err)
	}

	m.activeAlertsReg, err = m.meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			m.mu.RLock()
			src := m.activeAlertsSrc
			m.mu.RUnlock()
			if src == nil {
				return nil
			}
			for agent, n := range src() {
				o.ObserveInt64(m.activeAlertsGauge, int64(n), metric.WithAttributes(attribute.String("agent", agent)))
			}
			return nil
		},
		m.activeAlertsGauge,
	)
	if err != nil {
		return fmt.Errorf("failed to register active alerts callback: %w", err)
	}

	return nil
}

// RecordOperation records one instrumented call.
func (m *Metrics) RecordOperation(ctx context.Context, agent, monitor, operation string, seconds float64, success bool) {
	if m.operationDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("monitor", monitor),
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	)
	m.operationDuration.Record(ctx, seconds, attrs)
	if !success {
		m.operationErrors.Add(ctx, 1, attrs)
	}
}

// RecordBytes records request and response payload sizes.
func (m *Metrics) RecordBytes(ctx context.Context, agent, endpoint string, requestBytes, responseBytes int64) {
	if m.requestBytes == nil {
		return
	}
	if requestBytes > 0 {
		m.requestBytes.Add(ctx, requestBytes, metric.WithAttributes(
			attribute.String("agent", agent),
			attribute.String("endpoint", endpoint),
			attribute.String("direction", "request"),
		))
	}
	if responseBytes > 0 {
		m.requestBytes.Add(ctx, responseBytes, metric.WithAttributes(
			attribute.String("agent", agent),
			attribute.String("endpoint", endpoint),
			attribute.String("direction", "response"),
		))
	}
}

// RecordAlert increments the alert counter.
func (m *Metrics) RecordAlert(ctx context.Context, agent, alertType, severity string) {
	if m.alertCounter == nil {
		return
	}

	m.alertCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("type", alertType),
		attribute.String("severity", severity),
	))
}

// SetActiveAlertsSource sets the function polled by the active-alerts gauge.
func (m *Metrics) SetActiveAlertsSource(fn ActiveAlertsFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeAlertsSrc = fn
}

// Shutdown gracefully shuts down the metrics provider, flushing any pending metrics.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeAlertsReg != nil {
		if err := m.activeAlertsReg.Unregister(); err != nil {
			return fmt.Errorf("failed to unregister active alerts callback: %w", err)
		}
		m.activeAlertsReg = nil
	}

	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}

// Enabled returns whether metrics collection is enabled.
func (m *Metrics) Enabled() bool {
	return m.config.Enabled && m.config.ExporterType != ExporterNone
}

// MeterProvider returns the underlying meter provider.
func (m *Metrics) MeterProvider() *sdkmetric.MeterProvider {
	return m.meterProvider
}

// InstallGlobal registers the meter provider with the otel globals.
func (m *Metrics) InstallGlobal() {
	if m.Enabled() {
		otel.SetMeterProvider(m.meterProvider)
	}
}

// NoopMetrics returns a metrics instance that does nothing (for testing or when disabled).
func NoopMetrics() *Metrics {
	cfg := DefaultMetricsConfig()
	mp := sdkmetric.NewMeterProvider()
	return &Metrics{
		config:        cfg,
		meterProvider: mp,
		meter:         mp.Meter(cfg.ServiceName),
		shutdown:      func(context.Context) error { return nil },
	}
}
