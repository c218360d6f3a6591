// Package scan runs repository scans end to end and serves the scan,
// violation and analytics read models built from their results.
package scan

import (
	"context"

	"github.com/auditflow/api/pkg/domain/finding"
	"github.com/auditflow/api/pkg/domain/scanjob"
)

// Workspace is a materialized checkout of a repository.
type Workspace interface {
	Root() string
	Close() error
}

// Materializer produces a local workspace for a scan trigger.
type Materializer interface {
	Materialize(ctx context.Context, trigger scanjob.Trigger) (Workspace, error)
}

// StatusPublisher delivers status events to the observers of a user.
// Delivering to a user with no observers is not an error.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, userID string, ev scanjob.StatusEvent) error
}

// Archive stores the terminal artifact of a scan.
type Archive interface {
	Store(ctx context.Context, repoID int64, scanID string, result *finding.ScanResult) error
}

// ScanEnqueuer hands a trigger to the background worker.
type ScanEnqueuer interface {
	EnqueueScan(ctx context.Context, trigger scanjob.Trigger) error
}

// SummaryCache caches repo summaries. Get returns an error on miss.
type SummaryCache interface {
	Get(ctx context.Context, key string) (*RepoSummary, error)
	Set(ctx context.Context, key string, value RepoSummary) error
	Delete(ctx context.Context, key string) error
}

// SummaryInvalidator drops cached read models for a repo.
type SummaryInvalidator interface {
	InvalidateSummary(ctx context.Context, repoID int64, userID string)
}

// NopPublisher discards status events.
type NopPublisher struct{}

// PublishStatus implements StatusPublisher.
func (NopPublisher) PublishStatus(context.Context, string, scanjob.StatusEvent) error { return nil }
