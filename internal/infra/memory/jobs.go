package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/auditflow/api/pkg/domain/scanjob"
	"github.com/auditflow/api/pkg/domain/shared"
)

// JobRepository is an in-memory scanjob.Repository.
type JobRepository struct {
	mu    sync.RWMutex
	jobs  map[string]scanjob.Job
	order []string
}

// NewJobRepository creates an empty JobRepository.
func NewJobRepository() *JobRepository {
	return &JobRepository{jobs: make(map[string]scanjob.Job)}
}

// Create stores a new job. Duplicate ids conflict, as does a second active
// job for the same repo and user.
func (r *JobRepository) Create(_ context.Context, job *scanjob.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return shared.NewDomainError("ALREADY_EXISTS", "scan "+job.ID+" already exists", shared.ErrConflict)
	}
	if job.Status.IsActive() {
		for _, other := range r.jobs {
			if other.RepoID == job.RepoID && other.UserID == job.UserID && other.Status.IsActive() {
				return scanjob.InProgress(job.RepoID, "scan "+other.ID+" is already "+string(other.Status))
			}
		}
	}
	r.jobs[job.ID] = *job
	r.order = append(r.order, job.ID)
	return nil
}

// GetByID returns a copy of the job.
func (r *JobRepository) GetByID(_ context.Context, id string) (*scanjob.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, shared.NotFound("scan", id)
	}
	return &j, nil
}

// UpdateStatus replaces the lifecycle fields of a stored job. A job
// stored in a terminal status is left untouched.
func (r *JobRepository) UpdateStatus(_ context.Context, job *scanjob.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[job.ID]
	if !ok {
		return shared.NotFound("scan", job.ID)
	}
	if stored.Status.IsTerminal() {
		return scanjob.Finished(job.ID)
	}
	stored.Status = job.Status
	stored.Progress = job.Progress
	stored.Summary = job.Summary
	if job.Results != nil {
		stored.Results = job.Results
	}
	stored.UpdatedAt = job.UpdatedAt
	r.jobs[job.ID] = stored
	return nil
}

// List returns matching jobs, most recently updated first. A zero limit
// returns every match.
func (r *JobRepository) List(_ context.Context, f scanjob.Filter) ([]*scanjob.Job, error) {
	out := r.filter(func(j scanjob.Job) bool {
		if f.RepoID != nil && j.RepoID != *f.RepoID {
			return false
		}
		if f.UserID != "" && j.UserID != f.UserID {
			return false
		}
		return f.Status == nil || j.Status == *f.Status
	})
	sortNewestFirst(out, func(j *scanjob.Job) time.Time { return j.UpdatedAt })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// FindActive returns the newest non-terminal job of a repo.
func (r *JobRepository) FindActive(_ context.Context, repoID int64, userID string) (*scanjob.Job, error) {
	out := r.filter(func(j scanjob.Job) bool {
		return j.RepoID == repoID && j.UserID == userID && j.Status.IsActive()
	})
	if len(out) == 0 {
		return nil, shared.ErrNotFound
	}
	sortNewestFirst(out, func(j *scanjob.Job) time.Time { return j.CreatedAt })
	return out[0], nil
}

// ListStale returns non-terminal jobs last updated before the cutoff,
// oldest first.
func (r *JobRepository) ListStale(_ context.Context, before time.Time, limit int) ([]*scanjob.Job, error) {
	out := r.filter(func(j scanjob.Job) bool {
		return j.Status.IsActive() && j.UpdatedAt.Before(before)
	})
	sort.SliceStable(out, func(a, b int) bool { return out[a].UpdatedAt.Before(out[b].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *JobRepository) filter(keep func(scanjob.Job) bool) []*scanjob.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	// Newest insertions first so equal timestamps keep a stable order.
	var out []*scanjob.Job
	for i := len(r.order) - 1; i >= 0; i-- {
		j := r.jobs[r.order[i]]
		if keep(j) {
			cp := j
			out = append(out, &cp)
		}
	}
	return out
}

func sortNewestFirst[T any](items []T, at func(T) time.Time) {
	sort.SliceStable(items, func(a, b int) bool { return at(items[a]).After(at(items[b])) })
}
