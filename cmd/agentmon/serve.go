package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bc-dunia/agentmon/internal/api"
	"github.com/bc-dunia/agentmon/internal/config"
	"github.com/bc-dunia/agentmon/internal/events"
	"github.com/bc-dunia/agentmon/internal/monitor"
	"github.com/bc-dunia/agentmon/internal/notify"
	"github.com/bc-dunia/agentmon/internal/otel"
	"github.com/bc-dunia/agentmon/internal/retention"
	"github.com/bc-dunia/agentmon/internal/sysstats"
	"github.com/bc-dunia/agentmon/internal/watchdog"
	amerr "github.com/bc-dunia/agentmon/pkg/errors"
)

// selfAgent names the facade that monitors the API server itself.
const selfAgent = "agentmon"

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring API, watchdog and retention sweeper",
		Long: "Builds one monitor facade per configured agent and serves their status over HTTP.\n" +
			"Configuration comes from AGENTMON_* environment variables and an optional .env file.",
		RunE: runServe,
	}
	cmd.Flags().String("env-file", "", "path to an env file (default: ./.env when present)")
	cmd.Flags().String("addr", "", "listen address, overrides AGENTMON_SERVER_ADDR")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	logger := events.NewEventLogger(events.Options{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.Development,
	})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := a.start(ctx); err != nil {
		_ = a.shutdown(context.Background())
		return err
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.shutdown(shutdownCtx)
}

// app holds every long-lived component of a running server.
type app struct {
	cfg       *config.Config
	logger    *events.EventLogger
	tracer    *otel.Tracer
	metrics   *otel.Metrics
	sentry    *notify.SentryNotifier
	registry  *monitor.Registry
	watchdog  *watchdog.Watchdog
	retention *retention.Manager
	server    *api.Server

	stopWatchdog context.CancelFunc
	watchdogDone chan struct{}
}

// newTracer builds the configured tracer; a disabled config yields a noop one.
func newTracer(ctx context.Context, cfg *config.Config) (*otel.Tracer, error) {
	t, err := otel.NewTracer(ctx, &otel.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.App.Name,
		ServiceVersion: version,
		ExporterType:   otel.ExporterType(cfg.Tracing.Exporter),
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		OTLPInsecure:   cfg.Tracing.Insecure,
		SampleRate:     cfg.Tracing.SampleRate,
		Attributes:     map[string]string{"deployment.environment": cfg.App.Env},
	})
	if err != nil {
		return nil, amerr.Wrap(err, amerr.CodeTelemetrySetupFailure, "create tracer")
	}
	return t, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *events.EventLogger) (_ *app, err error) {
	thresholds, err := monitor.ParseThresholds(cfg.Monitor.Thresholds, cfg.Monitor.OverflowGrade)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	a.tracer, err = newTracer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = a.closeTelemetry(ctx)
		}
	}()

	a.metrics, err = otel.NewMetrics(ctx, &otel.MetricsConfig{
		Enabled:        cfg.Metrics.Enabled,
		ServiceName:    cfg.App.Name,
		ServiceVersion: version,
		ExporterType:   otel.ExporterType(cfg.Metrics.Exporter),
		OTLPEndpoint:   cfg.Metrics.Endpoint,
		OTLPInsecure:   cfg.Metrics.Insecure,
		Attributes:     map[string]string{"deployment.environment": cfg.App.Env},
	})
	if err != nil {
		return nil, amerr.Wrap(err, amerr.CodeTelemetrySetupFailure, "create metrics")
	}

	var notifiers []monitor.Notifier
	if cfg.Sentry.DSN != "" {
		a.sentry, err = notify.NewSentryNotifier(notify.SentryConfig{
			DSN:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			Release:     version,
			MinSeverity: monitor.AlertSeverity(cfg.Sentry.MinSeverity),
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, a.sentry)
	}

	facadeCfg := monitor.FacadeConfig{
		UsageCapacity:   cfg.Monitor.UsageCapacity,
		LatencyCapacity: cfg.Monitor.LatencyCapacity,
		AlertCapacity:   cfg.Monitor.AlertCapacity,
		RecentWindow:    cfg.Monitor.RecentWindow,
		Thresholds:      &thresholds,
		Logger:          logger,
		Tracer:          a.tracer,
		Metrics:         a.metrics,
		Sampler:         sysstats.NewHostSampler(config.DefaultSampleCacheFor),
		Notifiers:       notifiers,
	}

	a.registry = monitor.NewRegistry()
	for _, agent := range append(append([]string(nil), cfg.Monitor.Agents...), selfAgent) {
		f, err := monitor.NewFacade(agent, facadeCfg)
		if err != nil {
			return nil, err
		}
		if err := a.registry.Register(f); err != nil {
			return nil, err
		}
	}
	self, err := a.registry.Get(selfAgent)
	if err != nil {
		return nil, err
	}
	a.metrics.SetActiveAlertsSource(a.registry.ActiveAlertCounts)

	a.watchdog = watchdog.New(a.registry, watchdog.Rules{
		ErrorRatePercent: cfg.Rules.ErrorRatePercent,
		LatencySeconds:   cfg.Rules.LatencySeconds,
		CPUPercent:       cfg.Rules.CPUPercent,
		MemoryPercent:    cfg.Rules.MemoryPercent,
		MinRequests:      cfg.Rules.MinRequests,
		Window:           cfg.Monitor.RecentWindow,
		Cooldown:         cfg.Rules.Cooldown,
		Interval:         cfg.Rules.Interval,
	}, logger)

	a.retention = retention.NewManager(retention.Config{
		ResolvedAlertTTL: cfg.Retention.ResolvedAlertTTL,
		SweepInterval:    cfg.Retention.SweepInterval,
	}, a.registry, logger)

	limits := api.DefaultRateLimiterConfig()
	limits.RequestsPerSecond = cfg.Server.RateLimit
	limits.BurstSize = cfg.Server.RateBurst
	a.server = api.New(api.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		RateLimit:    limits,
	}, a.registry,
		api.WithSelfMonitor(self),
		api.WithTracer(a.tracer),
		api.WithLogger(logger),
	)

	if a.tracer.Enabled() {
		a.tracer.InstallGlobal()
	}
	if a.metrics.Enabled() {
		a.metrics.InstallGlobal()
	}
	return a, nil
}

func (a *app) start(ctx context.Context) error {
	a.retention.Start()

	wctx, cancel := context.WithCancel(ctx)
	a.stopWatchdog = cancel
	a.watchdogDone = make(chan struct{})
	go func() {
		defer close(a.watchdogDone)
		a.watchdog.Run(wctx)
	}()

	return a.server.Start()
}

// shutdown stops components in reverse dependency order and joins their errors.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error

	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.stopWatchdog != nil {
		a.stopWatchdog()
		<-a.watchdogDone
	}
	a.retention.Stop()

	errs = append(errs, a.closeTelemetry(ctx))
	return errors.Join(errs...)
}

// closeTelemetry shuts down whichever exporters were created and flushes Sentry.
func (a *app) closeTelemetry(ctx context.Context) error {
	var errs []error
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, amerr.Wrap(err, amerr.CodeTelemetrySetupFailure, "shutdown tracer"))
		}
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, amerr.Wrap(err, amerr.CodeTelemetrySetupFailure, "shutdown metrics"))
		}
	}
	if a.sentry != nil {
		a.sentry.Flush()
	}
	return errors.Join(errs...)
}
