package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/auditflow/api/pkg/domain/finding"
	"github.com/auditflow/api/pkg/domain/scanjob"
	"github.com/auditflow/api/pkg/domain/shared"
)

// ScanJobRepository implements scanjob.Repository using PostgreSQL.
type ScanJobRepository struct {
	db *DB
}

// NewScanJobRepository creates a new ScanJobRepository.
func NewScanJobRepository(db *DB) *ScanJobRepository {
	return &ScanJobRepository{db: db}
}

const scanJobColumns = `id, repo_id, user_id, repo_name, status, progress, summary, results, created_at, updated_at`

// activeCondition matches jobs that have not reached a terminal status.
var activeCondition = fmt.Sprintf("status NOT IN ('%s', '%s')", scanjob.StatusCompleted, scanjob.StatusFailed)

// singleActiveIndex allows one active scan per repo and user.
const singleActiveIndex = "idx_scan_jobs_single_active"

// Create persists a new scan job. A second active job for the same repo
// and user is rejected by singleActiveIndex.
func (r *ScanJobRepository) Create(ctx context.Context, job *scanjob.Job) error {
	results, err := toJSONB(job.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scan_jobs (`+scanJobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.RepoID, job.UserID, job.RepoName,
		string(job.Status), job.Progress, job.Summary, results,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolationOn(err, singleActiveIndex):
			return scanjob.InProgress(job.RepoID, "another scan is already active")
		case isUniqueViolation(err):
			return shared.NewDomainError("ALREADY_EXISTS", "scan "+job.ID+" already exists", shared.ErrConflict)
		}
		return fmt.Errorf("failed to create scan job: %w", err)
	}
	return nil
}

// GetByID retrieves a scan job by its id.
func (r *ScanJobRepository) GetByID(ctx context.Context, id string) (*scanjob.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scanJobColumns+` FROM scan_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NotFound("scan", id)
	}
	return job, err
}

// UpdateStatus persists the lifecycle fields. Results are only written
// when set so earlier results are never cleared. A job stored in a
// terminal status is never overwritten.
func (r *ScanJobRepository) UpdateStatus(ctx context.Context, job *scanjob.Job) error {
	results, err := toJSONB(job.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE scan_jobs
		SET status = $2, progress = $3, summary = $4,
		    results = COALESCE($5, results), updated_at = $6
		WHERE id = $1 AND `+activeCondition,
		job.ID, string(job.Status), job.Progress, job.Summary, results, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update scan job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update scan job: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM scan_jobs WHERE id = $1)`, job.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check scan job: %w", err)
	}
	if !exists {
		return shared.NotFound("scan", job.ID)
	}
	return scanjob.Finished(job.ID)
}

// List returns matching jobs, most recently updated first. A zero limit
// returns every match.
func (r *ScanJobRepository) List(ctx context.Context, f scanjob.Filter) ([]*scanjob.Job, error) {
	var w whereBuilder
	if f.RepoID != nil {
		w.add("repo_id = ?", *f.RepoID)
	}
	if f.UserID != "" {
		w.add("user_id = ?", f.UserID)
	}
	if f.Status != nil {
		w.add("status = ?", string(*f.Status))
	}

	query := `SELECT ` + scanJobColumns + ` FROM scan_jobs` + w.clause() +
		` ORDER BY updated_at DESC, created_at DESC` + w.limitClause(f.Limit)
	return r.query(ctx, query, w.args...)
}

// FindActive returns the newest non-terminal job of a repo.
func (r *ScanJobRepository) FindActive(ctx context.Context, repoID int64, userID string) (*scanjob.Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+scanJobColumns+` FROM scan_jobs
		WHERE repo_id = $1 AND user_id = $2 AND `+activeCondition+`
		ORDER BY created_at DESC
		LIMIT 1`, repoID, userID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	return job, err
}

// ListStale returns non-terminal jobs last updated before the cutoff,
// oldest first.
func (r *ScanJobRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*scanjob.Job, error) {
	var w whereBuilder
	w.raw(activeCondition)
	w.add("updated_at < ?", before)

	query := `SELECT ` + scanJobColumns + ` FROM scan_jobs` + w.clause() +
		` ORDER BY updated_at ASC` + w.limitClause(limit)
	return r.query(ctx, query, w.args...)
}

func (r *ScanJobRepository) query(ctx context.Context, query string, args ...any) ([]*scanjob.Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*scanjob.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*scanjob.Job, error) {
	var (
		job     scanjob.Job
		status  string
		results []byte
	)
	err := row.Scan(
		&job.ID, &job.RepoID, &job.UserID, &job.RepoName,
		&status, &job.Progress, &job.Summary, &results,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan job row: %w", err)
	}

	job.Status = scanjob.Status(status)
	if len(results) > 0 {
		job.Results = &finding.ScanResult{}
		if err := fromJSONB(results, job.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results: %w", err)
		}
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return &job, nil
}
