package main

import (
	"context"
	"sync"

	"github.com/auditflow/api/internal/config"
	"github.com/auditflow/api/internal/infra/jobs"
	"github.com/auditflow/api/pkg/logger"
)

// Workers holds all background worker instances.
type Workers struct {
	JobWorker    *jobs.Worker
	ScanRecovery *jobs.ScanRecoveryJob

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkers initializes the scan worker and the stuck-scan recovery job.
func NewWorkers(cfg *config.Config, services *Services, log *logger.Logger) *Workers {
	return &Workers{
		JobWorker:    jobs.NewWorker(&cfg.Redis, &cfg.Worker, services.Orchestrator, log),
		ScanRecovery: jobs.NewScanRecoveryJob(services.Scan, &cfg.Worker, log),
	}
}

// Start starts all workers in the background.
func (w *Workers) Start(ctx context.Context, log *logger.Logger) error {
	ctx, w.cancel = context.WithCancel(ctx)

	if err := w.ScanRecovery.Start(); err != nil {
		w.cancel()
		return err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.JobWorker.Run(ctx); err != nil {
			log.Error("job worker stopped", "error", err)
		}
	}()

	log.Info("workers started")
	return nil
}

// Stop stops all workers and waits for in-flight scans to be handed back.
func (w *Workers) Stop(log *logger.Logger) {
	w.ScanRecovery.Stop()
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	log.Info("workers stopped")
}
