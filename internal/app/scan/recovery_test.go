package scan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/api/pkg/domain/scanjob"
	"github.com/auditflow/api/pkg/logger"
)

func (f *serviceFixture) jobIn(t *testing.T, repoID int64, status scanjob.Status, progress int, updated time.Time) *scanjob.Job {
	t.Helper()
	job, err := scanjob.NewJob(repoID, "u1", "repo")
	require.NoError(t, err)
	job.Status = status
	job.Progress = progress
	job.CreatedAt = updated
	job.UpdatedAt = updated
	require.NoError(t, f.jobs.Create(context.Background(), job))
	return job
}

func TestService_RecoverStuckScans(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()

	stuck := f.jobIn(t, 1, scanjob.StatusScanning, scanjob.ProgressScanning, now.Add(-2*time.Hour))
	fresh := f.jobIn(t, 2, scanjob.StatusCloning, scanjob.ProgressCloning, now.Add(-10*time.Minute))
	done := f.completedScan(t, 3, "u1", now.Add(-5*time.Hour))
	f.cache.items[summaryKey(1, "u1")] = RepoSummary{RepoID: 1}

	out, err := f.svc.RecoverStuckScans(ctx, RecoverStuckInput{StuckAfter: time.Hour, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, RecoverStuckOutput{Total: 1, Recovered: 1}, out)

	got, err := f.jobs.GetByID(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, scanjob.StatusFailed, got.Status)
	assert.Equal(t, scanjob.ProgressScanning, got.Progress)
	assert.Equal(t, TimedOutSummary, got.Summary)

	for _, id := range []string{fresh.ID, done.ID} {
		other, err := f.jobs.GetByID(ctx, id)
		require.NoError(t, err)
		assert.NotEqual(t, scanjob.StatusFailed, other.Status)
	}

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "scan_failed", f.publisher.events[0].Type)
	assert.Equal(t, stuck.ID, f.publisher.events[0].ScanID)
	assert.NotContains(t, f.cache.items, summaryKey(1, "u1"))
}

func TestService_RecoverStuckScansErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("non-positive threshold", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.svc.RecoverStuckScans(ctx, RecoverStuckInput{})
		assert.Error(t, err)
	})

	t.Run("persist failure is counted", func(t *testing.T) {
		f := newServiceFixture()
		f.jobIn(t, 1, scanjob.StatusSaving, scanjob.ProgressSaving, now.Add(-3*time.Hour))
		jobs := &failingJobs{JobRepository: f.jobs, failOn: scanjob.StatusFailed}
		svc := NewService(jobs, f.violations, f.scores, f.enqueuer, f.publisher, logger.NewNop(),
			WithServiceClock(func() time.Time { return now }))

		out, err := svc.RecoverStuckScans(ctx, RecoverStuckInput{StuckAfter: time.Hour})
		require.NoError(t, err)
		assert.Equal(t, RecoverStuckOutput{Total: 1, Errors: 1}, out)
		assert.Empty(t, f.publisher.events)
	})
}
