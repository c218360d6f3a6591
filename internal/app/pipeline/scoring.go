package pipeline

import (
	"math"

	"github.com/auditflow/api/pkg/domain/finding"
)

// Category weights of the overall score.
const (
	securityWeight   = 0.4
	complianceWeight = 0.35
	qualityWeight    = 0.25
)

// Score computes category and overall scores from a finding set. Every
// finding debits a flat severity penalty from its scoring category;
// sub-scores floor at 0.
func Score(findings []finding.Finding) finding.ScoreSet {
	security, compliance, quality := 100.0, 100.0, 100.0
	s := finding.ScoreSet{TotalViolations: len(findings)}

	for _, f := range findings {
		penalty := f.Severity.Penalty()
		switch f.Category.ScoringCategory() {
		case finding.CategorySecurity:
			security -= penalty
		case finding.CategoryCompliance:
			compliance -= penalty
		default:
			quality -= penalty
		}

		switch f.Severity {
		case finding.SeverityCritical:
			s.CriticalViolations++
		case finding.SeverityHigh:
			s.HighViolations++
		case finding.SeverityMedium:
			s.MediumViolations++
		case finding.SeverityLow:
			s.LowViolations++
		case finding.SeverityInfo:
			s.InfoViolations++
		}
	}

	s.SecurityScore = round1(math.Max(0, security))
	s.ComplianceScore = round1(math.Max(0, compliance))
	s.QualityScore = round1(math.Max(0, quality))
	s.OverallScore = round1(securityWeight*s.SecurityScore + complianceWeight*s.ComplianceScore + qualityWeight*s.QualityScore)
	s.Grade = finding.GradeFor(s.OverallScore)
	return s
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
