// Package server is the composition root: it builds the services from the
// configuration, mounts the routes and runs the HTTP server until a shutdown
// signal arrives.
//
// Dependency flow:
//
//	config → usage repository → UsageService ─┐
//	executor, limiter, gate, metrics ─────────┴→ ExecuteService → handlers → chi router
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/sakif/magma-calc/internal/auth"
	"github.com/sakif/magma-calc/internal/config"
	"github.com/sakif/magma-calc/internal/executor"
	"github.com/sakif/magma-calc/internal/gate"
	"github.com/sakif/magma-calc/internal/handler"
	"github.com/sakif/magma-calc/internal/metrics"
	"github.com/sakif/magma-calc/internal/middleware"
	"github.com/sakif/magma-calc/internal/ratelimit"
	"github.com/sakif/magma-calc/internal/repository"
	"github.com/sakif/magma-calc/internal/repository/jsonl"
	sqliteRepo "github.com/sakif/magma-calc/internal/repository/sqlite"
	"github.com/sakif/magma-calc/internal/service"
)

const (
	// sweepSchedule drives rate-limiter cleanup and the 24h window prune.
	sweepSchedule = "@every 5m"

	// writeSlack is added to the execution timeout to get the HTTP write
	// timeout, so a response for a run that used its full budget still
	// goes out.
	writeSlack = 30 * time.Second

	shutdownTimeout = 30 * time.Second
)

// Server represents the HTTP server and everything it owns.
type Server struct {
	router  *chi.Mux
	cfg     *config.Config
	logger  *slog.Logger
	repo    repository.UsageRepository // nil when the journal could not be opened
	usage   *service.UsageService
	limiter *ratelimit.Limiter
	metrics *metrics.Metrics
	cron    *cron.Cron
}

// New wires all dependencies around exec and mounts the routes.
//
// Routes:
//
//	POST /execute  → run code
//	GET  /health   → liveness
//	GET  /stats    → usage summaries (bearer token when stats.token_secret is set)
//	GET  /metrics  → Prometheus (when metrics.enabled)
func New(cfg *config.Config, logger *slog.Logger, exec executor.Executor) (*Server, error) {
	s := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		logger:  logger,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			PerMinute: cfg.Limits.RateLimitPerMinute,
			PerHour:   cfg.Limits.RateLimitPerHour,
		}),
		cron: cron.New(),
	}

	repo, err := openUsageRepository(cfg.Usage)
	if err != nil {
		// The journal is a convenience; the service runs without it.
		logger.Warn("usage journal unavailable, statistics will not persist",
			slog.String("store", cfg.Usage.Store),
			slog.String("path", cfg.Usage.Path),
			slog.String("error", err.Error()),
		)
	} else {
		s.repo = repo
	}
	s.usage = service.NewUsageService(context.Background(), s.repo, logger)

	if cfg.Metrics.Enabled {
		s.metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}

	execSvc := service.NewExecuteService(
		exec,
		s.limiter,
		gate.New(cfg.Limits.MaxConcurrent),
		s.usage,
		s.metrics,
		service.ExecuteConfig{
			MaxInputBytes:  cfg.InputBytes(),
			MaxOutputBytes: cfg.OutputBytes(),
			StderrSignals:  cfg.Magma.StderrSignals,
		},
		logger,
	)

	var tokens *auth.TokenService
	if cfg.Stats.TokenSecret != "" {
		tokens, err = auth.NewTokenService(cfg.Stats.TokenSecret)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("stats token service: %w", err)
		}
	}

	s.setupRoutes(execSvc, tokens)

	if _, err := s.cron.AddFunc(sweepSchedule, s.sweep); err != nil {
		s.Close()
		return nil, fmt.Errorf("scheduling sweep: %w", err)
	}

	return s, nil
}

// openUsageRepository opens the configured journal store.
func openUsageRepository(cfg config.UsageConfig) (repository.UsageRepository, error) {
	switch cfg.Store {
	case "sqlite":
		return sqliteRepo.New(cfg.Path)
	case "jsonl":
		return jsonl.New(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unknown usage store %q", cfg.Store)
	}
}

// setupRoutes configures middleware and handlers.
//
// Middleware order: RequestID → RealIP → Logger → Recoverer → CORS. RealIP
// runs before anything reads RemoteAddr so rate limiting keys on the
// forwarded client address.
func (s *Server) setupRoutes(execSvc *service.ExecuteService, tokens *auth.TokenService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger, "/health", s.cfg.Metrics.Path))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.CORS(middleware.NewCORSPolicy(s.cfg.AllowedOrigins())))

	s.router.NotFound(handler.HandleNotFound)

	executeHandler := handler.NewExecuteHandler(execSvc, s.cfg.InputBytes(), s.logger)
	s.router.Post("/execute", executeHandler.HandleExecute)
	s.router.Get("/health", handler.HandleHealth)

	statsHandler := handler.NewStatsHandler(s.usage)
	s.router.Group(func(r chi.Router) {
		if tokens != nil {
			r.Use(auth.RequireBearer(tokens, auth.ScopeStats, handler.Unauthorized))
		}
		r.Get("/stats", statsHandler.HandleStats)
	})

	if s.metrics != nil {
		s.router.Method(http.MethodGet, s.cfg.Metrics.Path, s.metrics.Handler())
	}
}

// sweep drops stale rate-limit history and ages out the 24h statistics.
func (s *Server) sweep() {
	s.limiter.Cleanup()
	s.usage.Prune()
	s.logger.Debug("periodic sweep done", slog.Int("rate_limited_clients", s.limiter.Clients()))
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops the scheduler and closes the usage journal.
func (s *Server) Close() error {
	<-s.cron.Stop().Done()
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// tlsFiles returns the certificate pair when both files exist.
func (s *Server) tlsFiles() (cert, key string, ok bool) {
	cert, key = s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile
	if cert == "" || key == "" {
		return "", "", false
	}
	if _, err := os.Stat(cert); err != nil {
		return "", "", false
	}
	if _, err := os.Stat(key); err != nil {
		return "", "", false
	}
	return cert, key, true
}

// Start runs the HTTP server until SIGINT or SIGTERM, then drains in-flight
// requests for up to 30 seconds and releases resources.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Duration(s.cfg.Magma.Timeout)*time.Second + writeSlack,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	s.cron.Start()

	serverErrors := make(chan error, 1)
	go func() {
		cert, key, useTLS := s.tlsFiles()
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Server.Port),
			slog.Bool("tls", useTLS),
			slog.Int("max_concurrent", s.cfg.Limits.MaxConcurrent),
			slog.Int("timeout_sec", s.cfg.Magma.Timeout),
			slog.String("usage_store", s.cfg.Usage.Store),
			slog.Bool("stats_protected", s.cfg.Stats.TokenSecret != ""),
		)
		if useTLS {
			serverErrors <- srv.ListenAndServeTLS(cert, key)
			return
		}
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
