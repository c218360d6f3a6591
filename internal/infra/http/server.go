package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/auditflow/api/internal/config"
	"github.com/auditflow/api/internal/infra/http/middleware"
	"github.com/auditflow/api/pkg/logger"
)

const hstsMaxAge = 31536000 // 1 year

// Server represents the HTTP server.
type Server struct {
	httpServer   *http.Server
	router       Router
	config       *config.Config
	logger       *logger.Logger
	cleanupFuncs []func()
}

// NewServer creates the HTTP server with the global middleware chain
// installed. Routes are registered on Router() afterwards.
func NewServer(cfg *config.Config, log *logger.Logger) *Server {
	s := &Server{
		router: NewChiRouter(),
		config: cfg,
		logger: log,
	}

	hsts := 0
	if cfg.IsProduction() {
		hsts = hstsMaxAge
	}

	// Order matters: recovery outermost, logging innermost.
	s.router.Use(
		middleware.Recovery(log, cfg.IsProduction()),
		middleware.RequestID(),
		middleware.SecurityHeaders(hsts),
		middleware.CORS(cfg.Server.AllowedOrigins),
		middleware.BodyLimit(cfg.Server.MaxBodySize),
		middleware.Timeout(cfg.Server.RequestTimeout),
		middleware.Metrics(),
		middleware.Logger(log, middleware.DefaultLoggerConfig()),
	)

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	return s
}

// APIMiddlewares returns the middleware chain for authenticated API routes:
// bearer auth followed by the per-user rate limiter. The limiter is stopped
// on Shutdown.
func (s *Server) APIMiddlewares(verifier middleware.TokenVerifier) []Middleware {
	limit, stop := middleware.RateLimitWithStop(&s.config.RateLimit, s.logger)
	s.cleanupFuncs = append(s.cleanupFuncs, stop)
	return []Middleware{middleware.Auth(verifier, s.logger), limit}
}

// Router returns the router for registering handlers.
func (s *Server) Router() Router {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		"addr", s.config.Server.Addr(),
		"routes", len(CollectRoutes(s.router)),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	for _, cleanup := range s.cleanupFuncs {
		cleanup()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}
