// Package server wires the HTTP surface of the gateway: the middleware
// chain (recovery, request context, authentication), the ingest and camera
// routes, token refresh, admin user operations, and the health and metrics
// endpoints.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vigilops/camgate/internal/audit"
	"github.com/vigilops/camgate/internal/auth"
	"github.com/vigilops/camgate/internal/auth/token"
	"github.com/vigilops/camgate/internal/authz"
	"github.com/vigilops/camgate/internal/config"
	"github.com/vigilops/camgate/internal/observability"
	"github.com/vigilops/camgate/internal/reqctx"
	"github.com/vigilops/camgate/internal/userstore"
)

// Server is the gateway HTTP server.
type Server struct {
	config    *config.ServerConfig
	logger    observability.Logger
	registry  *prometheus.Registry
	metrics   *Metrics
	gateway   *auth.Gateway
	enforcer  *authz.Enforcer
	emitter   audit.Emitter
	users     userstore.Store
	refresher token.Refresher
	frames    FrameSink
	inventory *cameraInventory

	httpServer *http.Server
}

// Option is a functional option for the server.
type Option func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegistry sets the Prometheus registry served on /metrics.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

// WithRefresher sets the token refresher behind /api/v1/auth/refresh.
func WithRefresher(refresher token.Refresher) Option {
	return func(s *Server) {
		s.refresher = refresher
	}
}

// WithFrameSink sets the downstream sink for ingested camera payloads.
func WithFrameSink(sink FrameSink) Option {
	return func(s *Server) {
		s.frames = sink
	}
}

// New creates the gateway server.
func New(
	cfg *config.ServerConfig,
	gateway *auth.Gateway,
	enforcer *authz.Enforcer,
	emitter audit.Emitter,
	users userstore.Store,
	opts ...Option,
) (*Server, error) {
	if gateway == nil {
		return nil, errors.New("auth gateway is required")
	}
	if enforcer == nil {
		return nil, errors.New("authz enforcer is required")
	}
	if emitter == nil {
		return nil, errors.New("audit emitter is required")
	}
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if cfg == nil {
		cfg = &config.ServerConfig{}
	}

	s := &Server{
		config:    cfg,
		logger:    observability.NopLogger(),
		gateway:   gateway,
		enforcer:  enforcer,
		emitter:   emitter,
		users:     users,
		refresher: token.NopRefresher{},
		frames:    DiscardFrameSink{},
		inventory: newCameraInventory(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	if s.metrics == nil {
		s.metrics = NewMetricsWithRegisterer(cfg.GetEffectiveMetricsNamespace(), s.registry)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.GetEffectiveListenAddr(),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout.Duration(),
		WriteTimeout: cfg.WriteTimeout.Duration(),
		IdleTimeout:  cfg.IdleTimeout.Duration(),
	}

	return s, nil
}

// Handler builds the full route table with the middleware chain applied.
// Health and metrics stay outside authentication; everything under /api/v1
// passes recovery, request context, and the auth gateway.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.Handle("POST /api/v1/ingest",
		s.enforcer.RequireRole(auth.RoleAdmin)(http.HandlerFunc(s.handleIngest)))
	api.HandleFunc("GET /api/v1/cameras", s.handleListCameras)
	api.HandleFunc("POST /api/v1/auth/refresh", s.handleRefresh)
	api.Handle("POST /api/v1/users/{name}/password",
		s.enforcer.RequireRole(auth.RoleAdmin)(http.HandlerFunc(s.handleSetPassword)))
	api.Handle("POST /api/v1/users/{name}/role",
		s.enforcer.RequireRole(auth.RoleAdmin)(http.HandlerFunc(s.handleSetRole)))
	api.Handle("POST /api/v1/users/{name}/deactivate",
		s.enforcer.RequireRole(auth.RoleAdmin)(http.HandlerFunc(s.handleDeactivate)))

	protected := chain(http.Handler(api),
		s.gateway.Middleware(),
		s.enforcer.RequireRole(auth.RoleViewer),
	)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", s.handleHealthz)
	root.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	root.Handle("/api/v1/", protected)

	return chain(root,
		s.recoveryMiddleware(),
		reqctx.Middleware(),
		s.metricsMiddleware(),
	)
}

// chain applies middleware so the first listed runs outermost.
func chain(h http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// Start begins serving. It blocks until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("http server starting",
		observability.String("addr", s.httpServer.Addr),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.GetEffectiveShutdownTimeout())
	defer cancel()

	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

// handleHealthz reports liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
