package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/auditflow/api/internal/config"
	"github.com/auditflow/api/internal/infra/http"
	"github.com/auditflow/api/internal/infra/http/routes"
	"github.com/auditflow/api/internal/infra/postgres"
	"github.com/auditflow/api/internal/infra/redis"
	"github.com/auditflow/api/pkg/jwt"
	"github.com/auditflow/api/pkg/logger"
	"github.com/auditflow/api/pkg/tracing"
)

// Command line flags.
var (
	showRoutes  = flag.Bool("routes", false, "Print all registered routes and exit")
	routeFormat = flag.String("route-format", "table", "Route output format: table, json")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	// ==========================================================================
	// Configuration & Logger
	// ==========================================================================
	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env)

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		return 1
	}

	// ==========================================================================
	// Infrastructure
	// ==========================================================================
	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)
	log.Info("database connected")

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeWithLog(redisClient, "redis", log)
	log.Info("redis connected")

	stopPoolStats := redis.StartPoolStatsCollector(ctx, redisClient, 15*time.Second)
	defer stopPoolStats()

	jobClient := NewJobClient(cfg, log)
	defer closeWithLog(jobClient, "job client", log)

	// ==========================================================================
	// Services
	// ==========================================================================
	repos := NewRepositories(db)
	services, err := NewServices(ctx, &ServiceDeps{
		Config:      cfg,
		Log:         log,
		Repos:       repos,
		RedisClient: redisClient,
		JobClient:   jobClient,
	})
	if err != nil {
		log.Error("failed to initialize services", "error", err)
		return 1
	}
	log.Info("services initialized")

	// ==========================================================================
	// HTTP Server
	// ==========================================================================
	handlers := NewHandlers(&HandlerDeps{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		Services:    services,
	})

	server := http.NewServer(cfg, log)
	verifier := jwt.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	routes.Register(server.Router(), handlers, server.APIMiddlewares(verifier)...)

	if *showRoutes {
		if err := http.PrintRoutes(os.Stdout, http.CollectRoutes(server.Router()), *routeFormat); err != nil {
			log.Error("failed to print routes", "error", err)
			return 1
		}
		return 0
	}

	// ==========================================================================
	// Live status fan-out
	// ==========================================================================
	listenCtx, stopListener := context.WithCancel(ctx)
	defer stopListener()

	if err := services.Notifier.StartListener(listenCtx, services.WebSocketHub.Deliver); err != nil {
		log.Error("failed to start status listener", "error", err)
		return 1
	}

	// ==========================================================================
	// Workers
	// ==========================================================================
	workers := NewWorkers(cfg, services, log)
	if err := workers.Start(ctx, log); err != nil {
		log.Error("failed to start workers", "error", err)
		return 1
	}

	// ==========================================================================
	// Start Server
	// ==========================================================================
	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
		}
	}()
	log.Info("application started", "http_addr", cfg.Server.Addr())

	// ==========================================================================
	// Graceful Shutdown
	// ==========================================================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	stopListener()
	services.WebSocketHub.Close()
	log.Info("websocket hub stopped")

	workers.Stop(log)

	exitCode := 0
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		exitCode = 1
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown error", "error", err)
	}

	log.Info("application stopped")
	return exitCode
}

// =============================================================================
// Helper Functions
// =============================================================================

func initLogger(cfg *config.Config) *logger.Logger {
	lc := logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}
	if cfg.IsProduction() {
		lc.Sampling = logger.SamplingConfig{
			Enabled: cfg.Log.SamplingEnabled,
			Tick:    time.Second,
			//nolint:gosec // G115: validated non-negative in config.Validate()
			Threshold: uint64(cfg.Log.SamplingThreshold),
			Rate:      cfg.Log.SamplingRate,
			ErrorRate: cfg.Log.ErrorSamplingRate,
		}
	}
	log := logger.New(lc)
	log.SetDefault()
	return log
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
