package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/auditflow/api/internal/app/scan"
	"github.com/auditflow/api/internal/config"
	"github.com/auditflow/api/pkg/logger"
)

// StuckScanRecoverer fails scans stuck in a non-terminal state.
type StuckScanRecoverer interface {
	RecoverStuckScans(ctx context.Context, input scan.RecoverStuckInput) (scan.RecoverStuckOutput, error)
}

// ScanRecoveryJob periodically fails scans that stopped making progress.
type ScanRecoveryJob struct {
	recoverer StuckScanRecoverer
	config    *config.WorkerConfig
	cron      *cron.Cron
	logger    *logger.Logger
	mu        sync.Mutex
}

// NewScanRecoveryJob creates a new ScanRecoveryJob.
func NewScanRecoveryJob(recoverer StuckScanRecoverer, cfg *config.WorkerConfig, log *logger.Logger) *ScanRecoveryJob {
	return &ScanRecoveryJob{
		recoverer: recoverer,
		config:    cfg,
		cron:      cron.New(),
		logger:    log.With("component", "scan-recovery"),
	}
}

// Start schedules the recovery pass and runs it once immediately.
func (j *ScanRecoveryJob) Start() error {
	if !j.config.RecoveryEnabled {
		j.logger.Info("scan recovery job is disabled")
		return nil
	}

	if _, err := j.cron.AddFunc(j.config.RecoverySchedule, j.RunOnce); err != nil {
		return fmt.Errorf("invalid recovery schedule %q: %w", j.config.RecoverySchedule, err)
	}

	j.logger.Info("starting scan recovery job",
		"schedule", j.config.RecoverySchedule,
		"stuck_after", j.config.StuckAfter,
		"batch_size", j.config.RecoveryBatch,
	)
	go j.RunOnce()
	j.cron.Start()
	return nil
}

// Stop stops scheduling and waits for a running pass to finish.
func (j *ScanRecoveryJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("scan recovery job stopped")
}

// RunOnce performs one recovery pass. Overlapping passes are serialized.
func (j *ScanRecoveryJob) RunOnce() {
	j.mu.Lock()
	defer j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	out, err := j.recoverer.RecoverStuckScans(ctx, scan.RecoverStuckInput{
		StuckAfter: j.config.StuckAfter,
		Limit:      j.config.RecoveryBatch,
	})
	if err != nil {
		j.logger.Error("failed to recover stuck scans", "error", err)
		return
	}

	if out.Total > 0 {
		j.logger.Info("recovered stuck scans",
			"total", out.Total,
			"recovered", out.Recovered,
			"skipped", out.Skipped,
			"errors", out.Errors,
		)
	}
}
