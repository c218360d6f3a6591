package jobs

import (
	"context"
	"fmt"
	"os"

	"github.com/hibiken/asynq"

	"github.com/auditflow/api/internal/config"
	"github.com/auditflow/api/pkg/logger"
)

// Worker processes scan tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *logger.Logger
}

// NewWorker creates a worker that runs scans through runner.
func NewWorker(redis *config.RedisConfig, cfg *config.WorkerConfig, runner ScanRunner, log *logger.Logger) *Worker {
	log = log.With("component", "job_worker")

	server := asynq.NewServer(redisOpt(redis), asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueScans: 1,
		},
		Logger:   asynqLogger{log},
		LogLevel: asynq.InfoLevel,
	})

	mux := asynq.NewServeMux()
	NewScanTaskHandler(runner, log).RegisterHandlers(mux)

	return &Worker{
		server: server,
		mux:    mux,
		logger: log,
	}
}

// Run runs the worker until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("starting job worker")
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("worker error: %w", err)
	}

	<-ctx.Done()
	w.logger.Info("stopping job worker")
	w.server.Shutdown()
	return nil
}

// asynqLogger adapts the application logger to asynq.Logger.
type asynqLogger struct {
	log *logger.Logger
}

func (l asynqLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.log.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) {
	l.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}
