package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/auditflow/api/pkg/domain/scanjob"
)

// TimedOutSummary is written to scans failed by stuck-scan recovery.
const TimedOutSummary = "Scan timed out before completion."

// RecoverStuckInput selects which scans recovery fails.
type RecoverStuckInput struct {
	StuckAfter time.Duration // non-terminal scans not updated for this long
	Limit      int
}

// RecoverStuckOutput reports what a recovery pass did.
type RecoverStuckOutput struct {
	Total     int
	Recovered int
	Skipped   int
	Errors    int
}

// RecoverStuckScans fails scans left in a non-terminal state, for example
// by a worker that crashed mid-scan, and notifies their owners.
func (s *Service) RecoverStuckScans(ctx context.Context, input RecoverStuckInput) (RecoverStuckOutput, error) {
	var out RecoverStuckOutput
	if input.StuckAfter <= 0 {
		return out, fmt.Errorf("stuck threshold must be positive, got %s", input.StuckAfter)
	}

	stale, err := s.jobs.ListStale(ctx, s.now().Add(-input.StuckAfter), input.Limit)
	if err != nil {
		return out, fmt.Errorf("failed to list stuck scans: %w", err)
	}
	out.Total = len(stale)

	for _, job := range stale {
		if err := job.Transition(scanjob.StatusFailed, job.Progress, TimedOutSummary, nil); err != nil {
			out.Skipped++
			continue
		}
		if err := s.jobs.UpdateStatus(ctx, job); err != nil {
			if scanjob.IsFinished(err) {
				// The scan finished between listing and update.
				out.Skipped++
				continue
			}
			s.logger.Error("failed to mark stuck scan failed", "scan_id", job.ID, "error", err)
			out.Errors++
			continue
		}
		s.publish(ctx, job)
		s.InvalidateSummary(ctx, job.RepoID, job.UserID)
		s.logger.Warn("stuck scan failed", "scan_id", job.ID, "repo_id", job.RepoID, "progress", job.Progress)
		out.Recovered++
	}
	return out, nil
}
