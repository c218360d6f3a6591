package scanjob

import (
	"context"
	"time"
)

// Filter narrows a job listing.
type Filter struct {
	RepoID *int64
	UserID string
	Status *Status
	Limit  int
}

// Repository persists scan jobs keyed by scan id.
type Repository interface {
	Create(ctx context.Context, job *Job) error

	// GetByID returns shared.ErrNotFound when the job does not exist.
	GetByID(ctx context.Context, id string) (*Job, error)

	// UpdateStatus persists status, progress, summary and results (when set).
	UpdateStatus(ctx context.Context, job *Job) error

	// List returns jobs ordered by updated_at descending.
	List(ctx context.Context, filter Filter) ([]*Job, error)

	// FindActive returns the newest non-terminal job for a repo, or
	// shared.ErrNotFound.
	FindActive(ctx context.Context, repoID int64, userID string) (*Job, error)

	// ListStale returns non-terminal jobs not updated since before.
	ListStale(ctx context.Context, before time.Time, limit int) ([]*Job, error)
}
