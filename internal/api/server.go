// Package api serves the monitoring status API over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bc-dunia/agentmon/internal/config"
	"github.com/bc-dunia/agentmon/internal/events"
	"github.com/bc-dunia/agentmon/internal/monitor"
	"github.com/bc-dunia/agentmon/internal/otel"
	"github.com/bc-dunia/agentmon/internal/sysstats"
	amerr "github.com/bc-dunia/agentmon/pkg/errors"
)

const maxBodyBytes = 1 << 20

// Config holds HTTP server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    *RateLimiterConfig
}

// Option customizes a Server.
type Option func(*Server)

// WithSelfMonitor instruments every API handler with f.
func WithSelfMonitor(f *monitor.Facade) Option {
	return func(s *Server) { s.self = f }
}

// WithTracer enables the tracing middleware.
func WithTracer(t *otel.Tracer) Option {
	return func(s *Server) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l *events.EventLogger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHostStats replaces the host statistics source.
func WithHostStats(fn func(context.Context) sysstats.HostStats) Option {
	return func(s *Server) {
		if fn != nil {
			s.hostStats = fn
		}
	}
}

// Server exposes a Registry over HTTP.
type Server struct {
	cfg       Config
	registry  *monitor.Registry
	self      *monitor.Facade
	tracer    *otel.Tracer
	logger    *events.EventLogger
	hostStats func(context.Context) sysstats.HostStats
	limiter   *rateLimiter
	router    chi.Router
	nowFunc   func() time.Time

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	running    bool
}

// New builds the router for registry.
func New(cfg Config, registry *monitor.Registry, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultServerAddr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = config.DefaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = config.DefaultWriteTimeout
	}

	s := &Server{
		cfg:       cfg,
		registry:  registry,
		tracer:    otel.NoopTracer(),
		logger:    events.NoopEventLogger(),
		hostStats: sysstats.CollectHostStats,
		limiter:   newRateLimiter(cfg.RateLimit),
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("api")
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.Middleware(s.tracer))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, &ErrorResponse{
			ErrorType:    ErrorTypeNotFound,
			ErrorCode:    ErrorCodeNotFound,
			ErrorMessage: "Endpoint not found",
			Details:      map[string]any{"path": r.URL.Path},
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, &ErrorResponse{
			ErrorType:    ErrorTypeInvalidArgument,
			ErrorCode:    ErrorCodeMethodNotAllowed,
			ErrorMessage: "Method not allowed",
			Details:      map[string]any{"method": r.Method},
		})
	})

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Group(func(r chi.Router) {
			r.Use(s.selfMonitorMiddleware)

			r.Get("/status", s.handlePlatformStatus)
			r.Get("/agents", s.handleListAgents)

			r.Get("/agents/{agent}/status", s.handleAgentStatus)
			r.Get("/agents/{agent}/usage", s.handleUsage)
			r.Get("/agents/{agent}/usage/endpoints", s.handleUsageEndpoints)
			r.Get("/agents/{agent}/latency", s.handleLatency)
			r.Get("/agents/{agent}/latency/operations", s.handleLatencyOperations)
			r.Get("/agents/{agent}/alerts", s.handleListAlerts)
			r.Post("/agents/{agent}/alerts", s.handleTriggerAlert)
			r.Put("/agents/{agent}/alerts/monitoring", s.handleSetMonitoring)
			r.Get("/agents/{agent}/alerts/{alertID}", s.handleGetAlert)
			r.Post("/agents/{agent}/alerts/{alertID}/resolve", s.handleResolveAlert)
		})
	})
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return amerr.New(amerr.CodeServerStartFailure, "server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return amerr.Wrap(err, amerr.CodeServerStartFailure, "listen", amerr.Field("addr", s.cfg.Addr))
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ErrorLog:          zap.NewStdLog(s.logger.Zap()),
	}
	s.running = true

	srv := s.httpServer
	addr := listener.Addr().String()
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.LogServerFailed(addr, err)
		}
	}()

	s.logger.LogServerStarted(addr, s.registry.Agents())
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return amerr.Wrap(err, amerr.CodeServerShutdownFailure, "shutdown")
	}
	s.logger.LogServerStopped("shutdown")
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// URL returns the base URL of a started server.
func (s *Server) URL() string {
	return fmt.Sprintf("http://%s", s.Addr())
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientKey(r)) {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.limiter.config.BurstSize))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, &ErrorResponse{
				ErrorType:    ErrorTypeRateLimited,
				ErrorCode:    ErrorCodeRateLimitExceeded,
				ErrorMessage: "Too many requests. Please slow down.",
				Retryable:    true,
				Details:      map[string]any{"retry_after_seconds": 1},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// errServerStatus marks a handler response as failed for self-monitoring.
type errServerStatus int

func (e errServerStatus) Error() string {
	return fmt.Sprintf("status %d", int(e))
}

// selfMonitorMiddleware records each API request in the server's own facade.
// It is installed on a route group so it runs after routing and sees the
// full route pattern.
func (s *Server) selfMonitorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.self == nil {
			next.ServeHTTP(w, r)
			return
		}

		endpoint := otel.RoutePattern(r)
		if endpoint == "" {
			endpoint = r.URL.Path
		}
		info := &monitor.RequestInfo{
			SessionID: r.Header.Get("X-Session-ID"),
			UserAgent: r.UserAgent(),
			IPAddress: clientKey(r),
		}
		if r.ContentLength > 0 {
			info.RequestSize = r.ContentLength
		}
		ctx := monitor.WithRequestInfo(r.Context(), info)
		rec := &otel.StatusRecorder{ResponseWriter: w, Status: http.StatusOK}

		_ = s.self.Usage.Instrument(endpoint, r.Method)(ctx, func(ctx context.Context) error {
			return s.self.Latency.Measure(r.Method+" "+endpoint)(ctx, func(ctx context.Context) error {
				next.ServeHTTP(rec, r.WithContext(ctx))
				info.ResponseSize = rec.Bytes
				if rec.Status >= http.StatusInternalServerError {
					return errServerStatus(rec.Status)
				}
				return nil
			})
		})
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
