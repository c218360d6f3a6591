package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/auditflow/api/pkg/domain/finding"
)

// ScoreRepository is an in-memory finding.ScoreRepository.
type ScoreRepository struct {
	mu     sync.RWMutex
	scores []finding.ComplianceScore
}

// NewScoreRepository creates an empty ScoreRepository.
func NewScoreRepository() *ScoreRepository {
	return &ScoreRepository{}
}

// Save appends a score to the history.
func (r *ScoreRepository) Save(_ context.Context, score *finding.ComplianceScore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores = append(r.scores, *score)
	return nil
}

// ListSince returns scores of a repo at or after since, oldest first.
func (r *ScoreRepository) ListSince(_ context.Context, repoID int64, userID string, since time.Time) ([]*finding.ComplianceScore, error) {
	out := r.forRepo(repoID, userID, func(s finding.ComplianceScore) bool { return !s.ScanDate.Before(since) })
	sort.SliceStable(out, func(a, b int) bool { return out[a].ScanDate.Before(out[b].ScanDate) })
	return out, nil
}

// Latest returns up to n scores of a repo, newest first.
func (r *ScoreRepository) Latest(_ context.Context, repoID int64, userID string, n int) ([]*finding.ComplianceScore, error) {
	out := r.forRepo(repoID, userID, func(finding.ComplianceScore) bool { return true })
	// forRepo yields insertion order; reverse so ties favor later saves.
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	sortNewestFirst(out, func(s *finding.ComplianceScore) time.Time { return s.ScanDate })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (r *ScoreRepository) forRepo(repoID int64, userID string, keep func(finding.ComplianceScore) bool) []*finding.ComplianceScore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*finding.ComplianceScore
	for _, s := range r.scores {
		if s.RepoID == repoID && s.UserID == userID && keep(s) {
			cp := s
			out = append(out, &cp)
		}
	}
	return out
}
