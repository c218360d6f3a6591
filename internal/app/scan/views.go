package scan

import (
	"time"

	"github.com/auditflow/api/pkg/domain/finding"
	"github.com/auditflow/api/pkg/domain/scanjob"
)

// ScanSummary is one entry of a scan history listing.
type ScanSummary struct {
	ScanID             string         `json:"scan_id"`
	RepoID             int64          `json:"repo_id"`
	RepoName           string         `json:"repo_name"`
	Status             scanjob.Status `json:"status"`
	ScanDate           time.Time      `json:"scan_date"`
	OverallScore       float64        `json:"overall_score"`
	Grade              string         `json:"grade"`
	TotalViolations    int            `json:"total_violations"`
	CriticalViolations int            `json:"critical_violations"`
	HighViolations     int            `json:"high_violations"`
	MediumViolations   int            `json:"medium_violations"`
	LowViolations      int            `json:"low_violations"`
}

func newScanSummary(j *scanjob.Job) ScanSummary {
	s := ScanSummary{
		ScanID:   j.ID,
		RepoID:   j.RepoID,
		RepoName: j.RepoName,
		Status:   j.Status,
		ScanDate: j.UpdatedAt,
		Grade:    finding.GradeFor(0),
	}
	if j.Results != nil {
		sc := j.Results.Scores
		s.OverallScore = sc.OverallScore
		s.Grade = finding.GradeFor(sc.OverallScore)
		s.TotalViolations = sc.TotalViolations
		s.CriticalViolations = sc.CriticalViolations
		s.HighViolations = sc.HighViolations
		s.MediumViolations = sc.MediumViolations
		s.LowViolations = sc.LowViolations
	}
	return s
}

// HistoryPoint is one compliance score sample.
type HistoryPoint struct {
	Date            time.Time `json:"date"`
	ScanID          string    `json:"scan_id"`
	OverallScore    float64   `json:"overall_score"`
	SecurityScore   float64   `json:"security_score"`
	ComplianceScore float64   `json:"compliance_score"`
	QualityScore    float64   `json:"quality_score"`
	Grade           string    `json:"grade"`
}

// ViolationDay aggregates violations discovered on one day.
type ViolationDay struct {
	Date     string `json:"date"`
	Total    int    `json:"total_violations"`
	Critical int    `json:"critical_violations"`
	High     int    `json:"high_violations"`
	Medium   int    `json:"medium_violations"`
	Low      int    `json:"low_violations"`
}

// RepoSummary is the compliance overview of one repository.
type RepoSummary struct {
	RepoID       int64      `json:"repo_id"`
	RepoName     string     `json:"repo_name"`
	LastScanID   string     `json:"last_scan_id,omitempty"`
	LastScanDate *time.Time `json:"last_scan_date,omitempty"`
	OverallScore float64    `json:"overall_score"`
	Grade        string     `json:"grade"`
	Status       string     `json:"status"`
	Trend        string     `json:"trend"`

	OpenViolations     int `json:"open_violations_count"`
	CriticalViolations int `json:"critical_violations_count"`
	HighViolations     int `json:"high_violations_count"`
	MediumViolations   int `json:"medium_violations_count"`
	LowViolations      int `json:"low_violations_count"`

	ComplianceHistory []HistoryPoint `json:"compliance_history"`
	ViolationHistory  []ViolationDay `json:"violation_history"`

	ActiveScanID     string         `json:"active_scan_id,omitempty"`
	ActiveScanStatus scanjob.Status `json:"active_scan_status,omitempty"`
}

// ViolationCounts summarizes a violation listing.
type ViolationCounts struct {
	Total    int                    `json:"total_violations"`
	Critical int                    `json:"critical_count"`
	High     int                    `json:"high_count"`
	Medium   int                    `json:"medium_count"`
	Low      int                    `json:"low_count"`
	Info     int                    `json:"info_count"`
	ByStatus map[finding.Status]int `json:"by_status"`
}

func countViolations(vs []*finding.Violation) ViolationCounts {
	c := ViolationCounts{Total: len(vs), ByStatus: make(map[finding.Status]int)}
	for _, v := range vs {
		c.ByStatus[v.Status]++
		switch v.Severity {
		case finding.SeverityCritical:
			c.Critical++
		case finding.SeverityHigh:
			c.High++
		case finding.SeverityMedium:
			c.Medium++
		case finding.SeverityLow:
			c.Low++
		default:
			c.Info++
		}
	}
	return c
}

// ViolationList is the violation view of a repository's latest scan.
type ViolationList struct {
	RepoID     int64                `json:"repo_id"`
	ScanID     string               `json:"scan_id,omitempty"`
	ScanDate   *time.Time           `json:"scan_date,omitempty"`
	Violations []*finding.Violation `json:"violations"`
	Summary    ViolationCounts      `json:"summary"`
	Scores     finding.ScoreSet     `json:"scores"`
}

// TrendPoint is the average overall score of one day.
type TrendPoint struct {
	Date  string  `json:"date"`
	Score float64 `json:"score"`
}

// CategoryCount is a violation category with its occurrence count.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// AnalyticsSummary aggregates the latest scans of all of a user's repos.
type AnalyticsSummary struct {
	AverageComplianceScore float64         `json:"average_compliance_score"`
	RepositoriesScanned    int             `json:"repositories_scanned"`
	ActiveViolations       int             `json:"active_violations"`
	ComplianceTrend        []TrendPoint    `json:"compliance_trend"`
	TopViolationCategories []CategoryCount `json:"top_violation_categories"`
}
