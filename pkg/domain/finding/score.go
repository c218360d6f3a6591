package finding

import "time"

// ScoreSet holds the category and overall compliance scores for one scan,
// along with violation counts per severity.
type ScoreSet struct {
	SecurityScore   float64 `json:"security_score"`
	ComplianceScore float64 `json:"compliance_score"`
	QualityScore    float64 `json:"quality_score"`
	OverallScore    float64 `json:"overall_score"`
	Grade           string  `json:"grade"`

	TotalViolations    int `json:"total_violations"`
	CriticalViolations int `json:"critical_violations"`
	HighViolations     int `json:"high_violations"`
	MediumViolations   int `json:"medium_violations"`
	LowViolations      int `json:"low_violations"`
	InfoViolations     int `json:"info_violations"`
}

// PerfectScores is the score set of a scan with no findings.
func PerfectScores() ScoreSet {
	return ScoreSet{
		SecurityScore:   100,
		ComplianceScore: 100,
		QualityScore:    100,
		OverallScore:    100,
		Grade:           GradeFor(100),
	}
}

// GradeFor maps an overall score to a letter grade.
func GradeFor(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// Repo health values.
const (
	HealthCritical         = "critical"
	HealthAtRisk           = "at-risk"
	HealthNeedsImprovement = "needs-improvement"
	HealthHealthy          = "healthy"
)

// HealthFor derives a repository health label from its latest scores.
func HealthFor(s ScoreSet) string {
	switch {
	case s.CriticalViolations > 0:
		return HealthCritical
	case s.HighViolations > 0 || s.OverallScore < 70:
		return HealthAtRisk
	case s.OverallScore < 90:
		return HealthNeedsImprovement
	default:
		return HealthHealthy
	}
}

// Trend values.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// TrendFor compares the two most recent overall scores, newest first.
func TrendFor(latestFirst []float64) string {
	if len(latestFirst) < 2 {
		return TrendStable
	}
	switch {
	case latestFirst[0] > latestFirst[1]:
		return TrendImproving
	case latestFirst[0] < latestFirst[1]:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// ScanStats describes what the change detector and batch builder did.
type ScanStats struct {
	FilesSelected   int `json:"files_selected"`
	FilesUnchanged  int `json:"files_unchanged"`
	FilesIgnored    int `json:"files_ignored"`
	FilesOversized  int `json:"files_oversized"`
	ProcessingError int `json:"processing_errors"`
	Batches         int `json:"batches"`
}

// ScanResult is the terminal artifact attached to a completed scan.
type ScanResult struct {
	ScanSummary string    `json:"scan_summary"`
	Scores      ScoreSet  `json:"scores"`
	Findings    []Finding `json:"findings"`
	Stats       ScanStats `json:"stats"`
}

// ComplianceScore is the persisted score history entry for one scan.
type ComplianceScore struct {
	RepoID   int64     `json:"repo_id"`
	UserID   string    `json:"user_id"`
	ScanID   string    `json:"scan_id"`
	Scores   ScoreSet  `json:"scores"`
	ScanDate time.Time `json:"scan_date"`
}
