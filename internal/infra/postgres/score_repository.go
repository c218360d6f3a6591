package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/auditflow/api/pkg/domain/finding"
)

// ScoreRepository implements finding.ScoreRepository using PostgreSQL.
type ScoreRepository struct {
	db *DB
}

// NewScoreRepository creates a new ScoreRepository.
func NewScoreRepository(db *DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

const scoreColumns = `repo_id, user_id, scan_id, security_score, compliance_score, quality_score,
	overall_score, grade, total_violations, critical_violations, high_violations,
	medium_violations, low_violations, info_violations, scan_date`

// Save stores the score of one scan. Saving a scan twice replaces it.
func (r *ScoreRepository) Save(ctx context.Context, cs *finding.ComplianceScore) error {
	s := cs.Scores
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO compliance_scores (`+scoreColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (scan_id) DO UPDATE SET
			security_score = EXCLUDED.security_score,
			compliance_score = EXCLUDED.compliance_score,
			quality_score = EXCLUDED.quality_score,
			overall_score = EXCLUDED.overall_score,
			grade = EXCLUDED.grade,
			total_violations = EXCLUDED.total_violations,
			critical_violations = EXCLUDED.critical_violations,
			high_violations = EXCLUDED.high_violations,
			medium_violations = EXCLUDED.medium_violations,
			low_violations = EXCLUDED.low_violations,
			info_violations = EXCLUDED.info_violations,
			scan_date = EXCLUDED.scan_date`,
		cs.RepoID, cs.UserID, cs.ScanID,
		s.SecurityScore, s.ComplianceScore, s.QualityScore, s.OverallScore, s.Grade,
		s.TotalViolations, s.CriticalViolations, s.HighViolations,
		s.MediumViolations, s.LowViolations, s.InfoViolations,
		cs.ScanDate,
	)
	if err != nil {
		return fmt.Errorf("failed to save compliance score: %w", err)
	}
	return nil
}

// ListSince returns scores for a repo at or after since, oldest first.
func (r *ScoreRepository) ListSince(ctx context.Context, repoID int64, userID string, since time.Time) ([]*finding.ComplianceScore, error) {
	return r.query(ctx, `
		SELECT `+scoreColumns+` FROM compliance_scores
		WHERE repo_id = $1 AND user_id = $2 AND scan_date >= $3
		ORDER BY scan_date ASC`, repoID, userID, since)
}

// Latest returns up to n most recent scores, newest first.
func (r *ScoreRepository) Latest(ctx context.Context, repoID int64, userID string, n int) ([]*finding.ComplianceScore, error) {
	return r.query(ctx, `
		SELECT `+scoreColumns+` FROM compliance_scores
		WHERE repo_id = $1 AND user_id = $2
		ORDER BY scan_date DESC
		LIMIT $3`, repoID, userID, n)
}

func (r *ScoreRepository) query(ctx context.Context, query string, args ...any) ([]*finding.ComplianceScore, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list compliance scores: %w", err)
	}
	defer rows.Close()

	var out []*finding.ComplianceScore
	for rows.Next() {
		var cs finding.ComplianceScore
		s := &cs.Scores
		if err := rows.Scan(
			&cs.RepoID, &cs.UserID, &cs.ScanID,
			&s.SecurityScore, &s.ComplianceScore, &s.QualityScore, &s.OverallScore, &s.Grade,
			&s.TotalViolations, &s.CriticalViolations, &s.HighViolations,
			&s.MediumViolations, &s.LowViolations, &s.InfoViolations,
			&cs.ScanDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan compliance score row: %w", err)
		}
		cs.ScanDate = cs.ScanDate.UTC()
		out = append(out, &cs)
	}
	return out, rows.Err()
}
