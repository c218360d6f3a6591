package scanjob

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/auditflow/api/pkg/domain/finding"
	"github.com/auditflow/api/pkg/domain/shared"
)

// QueuedSummary is the summary of a freshly requested scan.
const QueuedSummary = "Scan has been queued for processing."

const (
	finishedCode   = "SCAN_FINISHED"
	inProgressCode = "SCAN_IN_PROGRESS"
)

// Job is one end-to-end scan execution of a repository for a user.
type Job struct {
	ID       string
	RepoID   int64
	UserID   string
	RepoName string

	Status   Status
	Progress int
	Summary  string
	Results  *finding.ScanResult

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewJob creates a queued scan job.
func NewJob(repoID int64, userID, repoName string) (*Job, error) {
	if repoID <= 0 {
		return nil, shared.Invalid("repo_id must be positive")
	}
	if userID == "" {
		return nil, shared.Invalid("user_id is required")
	}
	if repoName == "" {
		repoName = fmt.Sprintf("Repo ID %d", repoID)
	}

	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		RepoID:    repoID,
		UserID:    userID,
		RepoName:  repoName,
		Status:    StatusQueued,
		Progress:  ProgressQueued,
		Summary:   QueuedSummary,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Transition moves the job to next, validating the lifecycle.
func (j *Job) Transition(next Status, progress int, summary string, results *finding.ScanResult) error {
	if !j.Status.CanTransitionTo(next) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("cannot move scan %s from %s to %s", j.ID, j.Status, next), shared.ErrConflict)
	}
	j.Status = next
	j.Progress = clampProgress(progress)
	j.Summary = summary
	if results != nil {
		j.Results = results
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Finished is returned when a write targets a job that already reached a
// terminal status.
func Finished(id string) *shared.DomainError {
	return shared.NewDomainError(finishedCode, "scan "+id+" already finished", shared.ErrConflict)
}

// InProgress is returned when a repo already has an active scan for the
// same user.
func InProgress(repoID int64, detail string) *shared.DomainError {
	return shared.NewDomainError(inProgressCode,
		fmt.Sprintf("repo %d: %s", repoID, detail), shared.ErrConflict)
}

// IsInProgress reports whether err was returned by InProgress.
func IsInProgress(err error) bool {
	var de *shared.DomainError
	return errors.As(err, &de) && de.Code == inProgressCode
}

// IsFinished reports whether err was returned by Finished.
func IsFinished(err error) bool {
	var de *shared.DomainError
	return errors.As(err, &de) && de.Code == finishedCode
}

// IsOwnedBy reports whether userID owns the job.
func (j *Job) IsOwnedBy(userID string) bool {
	return j.UserID == userID
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
