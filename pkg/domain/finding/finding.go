package finding

import (
	"fmt"
	"time"

	"github.com/auditflow/api/pkg/domain/shared"
)

// Type values produced by the pipeline itself rather than the analysis service.
const (
	TypeAnalysisError = "analysis_error"

	// LocationAnalysisStep attributes a finding to the analysis step instead of a file.
	LocationAnalysisStep = "analysis step"
)

// Raw is a finding as reported by the analysis service. Location holds the
// file path the finding was reported under.
type Raw struct {
	Type           string   `json:"type"`
	Category       string   `json:"category"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
	Location       string   `json:"location"`
	Line           int      `json:"line"`
}

// NewAnalysisError builds the synthetic finding that stands in for a batch
// whose analysis failed.
func NewAnalysisError(batchIndex int, err error) Raw {
	return Raw{
		Type:           TypeAnalysisError,
		Category:       string(CategoryQuality),
		Severity:       SeverityHigh,
		Description:    fmt.Sprintf("Analysis of batch %d failed: %v", batchIndex+1, err),
		Recommendation: "Re-run the scan. If the failure persists, check the analysis service configuration.",
		Location:       LocationAnalysisStep,
	}
}

// Finding is a raw finding enriched with classification, priority and
// compliance metadata.
type Finding struct {
	ViolationID      string    `json:"violation_id"`
	Type             string    `json:"type"`
	Category         Category  `json:"category"`
	Severity         Severity  `json:"severity"`
	Description      string    `json:"description"`
	Recommendation   string    `json:"recommendation"`
	Location         string    `json:"location"`
	Line             int       `json:"line"`
	DiscoveredDate   time.Time `json:"discovered_date"`
	Status           Status    `json:"status"`
	AssignedPriority Priority  `json:"assigned_priority"`
	EstimatedFixTime string    `json:"estimated_fix_time"`
	ComplianceImpact []string  `json:"compliance_impact"`
	RiskLevel        string    `json:"risk_level"`
}

// Violation is a persisted finding owned by a repository scan.
type Violation struct {
	Finding

	RepoID int64  `json:"repo_id"`
	UserID string `json:"user_id"`
	ScanID string `json:"scan_id"`

	ResolvedDate    *time.Time `json:"resolved_date,omitempty"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewViolation attaches ownership to an enriched finding.
func NewViolation(f Finding, repoID int64, userID, scanID string, now time.Time) *Violation {
	return &Violation{
		Finding:   f,
		RepoID:    repoID,
		UserID:    userID,
		ScanID:    scanID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// UpdateStatus moves the violation to status. Resolving stamps the
// resolution fields; any other status clears them.
func (v *Violation) UpdateStatus(status Status, by, notes string, now time.Time) error {
	if !status.IsValid() {
		return shared.Invalid(fmt.Sprintf("invalid violation status: %s", status))
	}

	v.Status = status
	v.UpdatedAt = now
	if status == StatusResolved {
		v.ResolvedDate = &now
		v.ResolvedBy = by
		v.ResolutionNotes = notes
		return nil
	}
	v.ResolvedDate = nil
	v.ResolvedBy = ""
	v.ResolutionNotes = ""
	return nil
}
