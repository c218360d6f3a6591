package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/api/pkg/domain/finding"
	"github.com/auditflow/api/pkg/domain/fingerprint"
	"github.com/auditflow/api/pkg/domain/scanjob"
	"github.com/auditflow/api/pkg/domain/shared"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedJob(t *testing.T, r *JobRepository, repoID int64, user string, status scanjob.Status, updated time.Time) *scanjob.Job {
	t.Helper()
	j, err := scanjob.NewJob(repoID, user, "")
	require.NoError(t, err)
	j.Status = status
	j.CreatedAt = updated
	j.UpdatedAt = updated
	require.NoError(t, r.Create(context.Background(), j))
	return j
}

func TestJobRepository_List(t *testing.T) {
	ctx := context.Background()
	r := NewJobRepository()
	old := seedJob(t, r, 1, "u1", scanjob.StatusCompleted, base)
	recent := seedJob(t, r, 1, "u1", scanjob.StatusCompleted, base.Add(time.Hour))
	seedJob(t, r, 1, "u1", scanjob.StatusFailed, base.Add(2*time.Hour))
	seedJob(t, r, 2, "u1", scanjob.StatusCompleted, base.Add(3*time.Hour))
	seedJob(t, r, 1, "u2", scanjob.StatusCompleted, base.Add(4*time.Hour))

	repo := int64(1)
	completed := scanjob.StatusCompleted

	t.Run("filters and orders newest first", func(t *testing.T) {
		got, err := r.List(ctx, scanjob.Filter{RepoID: &repo, UserID: "u1", Status: &completed})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, recent.ID, got[0].ID)
		assert.Equal(t, old.ID, got[1].ID)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := r.List(ctx, scanjob.Filter{UserID: "u1", Limit: 2})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestJobRepository_CreateDuplicate(t *testing.T) {
	r := NewJobRepository()
	j := seedJob(t, r, 1, "u1", scanjob.StatusQueued, base)
	err := r.Create(context.Background(), j)
	assert.True(t, shared.IsConflict(err))
}

func TestJobRepository_UpdateStatusReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewJobRepository()
	j := seedJob(t, r, 1, "u1", scanjob.StatusQueued, base)

	require.NoError(t, j.Transition(scanjob.StatusCloning, scanjob.ProgressCloning, "cloning", nil))
	got, err := r.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, scanjob.StatusQueued, got.Status, "unsaved changes must not leak")

	require.NoError(t, r.UpdateStatus(ctx, j))
	got, err = r.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, scanjob.StatusCloning, got.Status)
	assert.Equal(t, "cloning", got.Summary)

	_, err = r.GetByID(ctx, "missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestJobRepository_UpdateStatusKeepsTerminalJobs(t *testing.T) {
	ctx := context.Background()
	r := NewJobRepository()
	j := seedJob(t, r, 1, "u1", scanjob.StatusScanning, base)

	stale := *j
	require.NoError(t, j.Transition(scanjob.StatusFailed, j.Progress, "Scan timed out", nil))
	require.NoError(t, r.UpdateStatus(ctx, j))

	require.NoError(t, stale.Transition(scanjob.StatusSaving, scanjob.ProgressSaving, "saving", nil))
	err := r.UpdateStatus(ctx, &stale)
	assert.True(t, scanjob.IsFinished(err))
	assert.True(t, shared.IsConflict(err))

	got, err := r.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, scanjob.StatusFailed, got.Status)
	assert.Equal(t, "Scan timed out", got.Summary)
}

func TestJobRepository_FindActiveAndStale(t *testing.T) {
	ctx := context.Background()
	r := NewJobRepository()
	seedJob(t, r, 1, "u1", scanjob.StatusCompleted, base)
	stuck := seedJob(t, r, 1, "u1", scanjob.StatusScanning, base)
	fresh := seedJob(t, r, 2, "u1", scanjob.StatusQueued, base.Add(2*time.Hour))

	active, err := r.FindActive(ctx, 1, "u1")
	require.NoError(t, err)
	assert.Equal(t, stuck.ID, active.ID)

	_, err = r.FindActive(ctx, 3, "u1")
	assert.True(t, shared.IsNotFound(err))

	stale, err := r.ListStale(ctx, base.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, stuck.ID, stale[0].ID)

	stale, err = r.ListStale(ctx, base.Add(3*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, fresh.ID, stale[1].ID)
}

func TestViolationRepository(t *testing.T) {
	ctx := context.Background()
	r := NewViolationRepository()

	mk := func(id, scan string, sev finding.Severity, at time.Time) *finding.Violation {
		return finding.NewViolation(finding.Finding{
			ViolationID:      id,
			Severity:         sev,
			Status:           finding.StatusOpen,
			DiscoveredDate:   at,
			ComplianceImpact: []string{"SOC 2"},
		}, 1, "u1", scan, at)
	}
	require.NoError(t, r.SaveAll(ctx, []*finding.Violation{
		mk("v1", "s1", finding.SeverityHigh, base),
		mk("v2", "s1", finding.SeverityLow, base.Add(time.Minute)),
		mk("v3", "s2", finding.SeverityLow, base.Add(2*time.Minute)),
	}))

	got, err := r.List(ctx, finding.ViolationFilter{RepoID: 1, UserID: "u1", ScanID: "s1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "v2", got[0].ViolationID)

	got[0].ComplianceImpact[0] = "mutated"
	again, err := r.GetByID(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, "SOC 2", again.ComplianceImpact[0])

	require.NoError(t, again.UpdateStatus(finding.StatusResolved, "u1", "fixed", base))
	require.NoError(t, r.Update(ctx, again))

	resolved := finding.StatusResolved
	got, err = r.List(ctx, finding.ViolationFilter{UserID: "u1", Status: &resolved})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fixed", got[0].ResolutionNotes)

	err = r.Update(ctx, mk("nope", "s1", finding.SeverityLow, base))
	assert.True(t, shared.IsNotFound(err))
}

func TestScoreRepository(t *testing.T) {
	ctx := context.Background()
	r := NewScoreRepository()
	for i, score := range []float64{70, 80, 75} {
		require.NoError(t, r.Save(ctx, &finding.ComplianceScore{
			RepoID:   1,
			UserID:   "u1",
			ScanID:   string(rune('a' + i)),
			Scores:   finding.ScoreSet{OverallScore: score},
			ScanDate: base.Add(time.Duration(i) * 24 * time.Hour),
		}))
	}
	require.NoError(t, r.Save(ctx, &finding.ComplianceScore{RepoID: 2, UserID: "u1", ScanDate: base}))

	latest, err := r.Latest(ctx, 1, "u1", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, 75.0, latest[0].Scores.OverallScore)
	assert.Equal(t, 80.0, latest[1].Scores.OverallScore)

	since, err := r.ListSince(ctx, 1, "u1", base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, 80.0, since[0].Scores.OverallScore)
}

func TestFingerprintStore(t *testing.T) {
	ctx := context.Background()
	s := NewFingerprintStore()

	_, err := s.Get(ctx, 1, "a.go")
	assert.True(t, shared.IsNotFound(err))

	require.NoError(t, s.Upsert(ctx, &fingerprintFixture))
	require.NoError(t, s.Upsert(ctx, &fingerprintFixture))
	assert.Equal(t, 1, s.Len())

	got, err := s.Get(ctx, 1, "a.go")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ContentHash)
}

var fingerprintFixture = fingerprint.Fingerprint{RepoID: 1, Path: "a.go", ContentHash: "abc", LastScanned: base}
