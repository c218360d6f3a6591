package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/auditflow/api/pkg/domain/finding"
	"github.com/auditflow/api/pkg/domain/shared"
)

// ViolationRepository implements finding.ViolationRepository using PostgreSQL.
type ViolationRepository struct {
	db *DB
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(db *DB) *ViolationRepository {
	return &ViolationRepository{db: db}
}

const violationColumns = `violation_id, repo_id, user_id, scan_id, type, category, severity,
	description, recommendation, location, line, discovered_date, status,
	assigned_priority, estimated_fix_time, compliance_impact, risk_level,
	resolved_date, resolved_by, resolution_notes, created_at, updated_at`

// SaveAll stores the violations of one scan in a single transaction.
func (r *ViolationRepository) SaveAll(ctx context.Context, violations []*finding.Violation) error {
	if len(violations) == 0 {
		return nil
	}

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO violations (`+violationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`)
		if err != nil {
			return fmt.Errorf("failed to prepare violation insert: %w", err)
		}
		defer stmt.Close()

		for _, v := range violations {
			_, err := stmt.ExecContext(ctx,
				v.ViolationID, v.RepoID, v.UserID, v.ScanID, v.Type,
				string(v.Category), string(v.Severity),
				v.Description, v.Recommendation, v.Location, v.Line,
				v.DiscoveredDate, string(v.Status),
				string(v.AssignedPriority), v.EstimatedFixTime,
				pq.StringArray(v.ComplianceImpact), v.RiskLevel,
				nullTime(v.ResolvedDate), nullString(v.ResolvedBy), nullString(v.ResolutionNotes),
				v.CreatedAt, v.UpdatedAt,
			)
			if err != nil {
				if isUniqueViolation(err) {
					return shared.NewDomainError("ALREADY_EXISTS",
						"violation "+v.ViolationID+" already exists", shared.ErrConflict)
				}
				return fmt.Errorf("failed to insert violation: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a violation by its id.
func (r *ViolationRepository) GetByID(ctx context.Context, violationID string) (*finding.Violation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+violationColumns+` FROM violations WHERE violation_id = $1`, violationID)
	v, err := scanViolation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NotFound("violation", violationID)
	}
	return v, err
}

// List returns matching violations, newest discovered first.
func (r *ViolationRepository) List(ctx context.Context, f finding.ViolationFilter) ([]*finding.Violation, error) {
	var w whereBuilder
	if f.RepoID != 0 {
		w.add("repo_id = ?", f.RepoID)
	}
	if f.UserID != "" {
		w.add("user_id = ?", f.UserID)
	}
	if f.ScanID != "" {
		w.add("scan_id = ?", f.ScanID)
	}
	if f.Status != nil {
		w.add("status = ?", string(*f.Status))
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+violationColumns+` FROM violations`+w.clause()+
			` ORDER BY discovered_date DESC, violation_id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	defer rows.Close()

	var out []*finding.Violation
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Update persists status and resolution fields.
func (r *ViolationRepository) Update(ctx context.Context, v *finding.Violation) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE violations
		SET status = $2, resolved_date = $3, resolved_by = $4, resolution_notes = $5, updated_at = $6
		WHERE violation_id = $1`,
		v.ViolationID, string(v.Status),
		nullTime(v.ResolvedDate), nullString(v.ResolvedBy), nullString(v.ResolutionNotes),
		v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update violation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return shared.NotFound("violation", v.ViolationID)
	}
	return nil
}

func scanViolation(row rowScanner) (*finding.Violation, error) {
	var (
		v                           finding.Violation
		category, severity, status  string
		priority                    string
		impact                      pq.StringArray
		resolvedDate                sql.NullTime
		resolvedBy, resolutionNotes sql.NullString
	)
	err := row.Scan(
		&v.ViolationID, &v.RepoID, &v.UserID, &v.ScanID, &v.Type, &category, &severity,
		&v.Description, &v.Recommendation, &v.Location, &v.Line, &v.DiscoveredDate, &status,
		&priority, &v.EstimatedFixTime, &impact, &v.RiskLevel,
		&resolvedDate, &resolvedBy, &resolutionNotes, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan violation row: %w", err)
	}

	v.Category = finding.Category(category)
	v.Severity = finding.Severity(severity)
	v.Status = finding.Status(status)
	v.AssignedPriority = finding.Priority(priority)
	v.ComplianceImpact = []string(impact)
	v.ResolvedDate = nullTimeValue(resolvedDate)
	v.ResolvedBy = nullStringValue(resolvedBy)
	v.ResolutionNotes = nullStringValue(resolutionNotes)
	v.DiscoveredDate = v.DiscoveredDate.UTC()
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	return &v, nil
}
