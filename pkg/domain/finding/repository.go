package finding

import (
	"context"
	"time"
)

// ViolationFilter narrows a violation listing.
type ViolationFilter struct {
	RepoID int64
	UserID string
	ScanID string
	Status *Status
}

// ViolationRepository persists violations.
type ViolationRepository interface {
	// SaveAll stores the violations of one scan.
	SaveAll(ctx context.Context, violations []*Violation) error

	// GetByID returns shared.ErrNotFound when the violation does not exist.
	GetByID(ctx context.Context, violationID string) (*Violation, error)

	// List returns violations newest discovered first.
	List(ctx context.Context, filter ViolationFilter) ([]*Violation, error)

	// Update persists status and resolution fields.
	Update(ctx context.Context, v *Violation) error
}

// ScoreRepository persists the compliance score history.
type ScoreRepository interface {
	Save(ctx context.Context, score *ComplianceScore) error

	// ListSince returns scores for a repo at or after since, oldest first.
	ListSince(ctx context.Context, repoID int64, userID string, since time.Time) ([]*ComplianceScore, error)

	// Latest returns up to n most recent scores, newest first.
	Latest(ctx context.Context, repoID int64, userID string, n int) ([]*ComplianceScore, error)
}
