package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/auditflow/api/pkg/domain/finding"
)

func f(severity finding.Severity, category finding.Category) finding.Finding {
	return finding.Finding{Severity: severity, Category: category}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		findings []finding.Finding
		want     finding.ScoreSet
	}{
		{
			name:     "no findings",
			findings: nil,
			want:     finding.PerfectScores(),
		},
		{
			name:     "one critical security finding",
			findings: []finding.Finding{f(finding.SeverityCritical, finding.CategorySecurity)},
			want: finding.ScoreSet{
				SecurityScore: 50, ComplianceScore: 100, QualityScore: 100,
				OverallScore: 80, Grade: "B",
				TotalViolations: 1, CriticalViolations: 1,
			},
		},
		{
			name: "security floors at zero",
			findings: []finding.Finding{
				f(finding.SeverityCritical, finding.CategorySecurity),
				f(finding.SeverityCritical, finding.CategorySecurity),
				f(finding.SeverityCritical, finding.CategorySecurity),
			},
			want: finding.ScoreSet{
				SecurityScore: 0, ComplianceScore: 100, QualityScore: 100,
				OverallScore: 60, Grade: "D",
				TotalViolations: 3, CriticalViolations: 3,
			},
		},
		{
			name:     "best practice debits quality",
			findings: []finding.Finding{f(finding.SeverityMedium, finding.CategoryBestPractice)},
			want: finding.ScoreSet{
				SecurityScore: 100, ComplianceScore: 100, QualityScore: 90,
				OverallScore: 97.5, Grade: "A",
				TotalViolations: 1, MediumViolations: 1,
			},
		},
		{
			name: "mixed categories",
			findings: []finding.Finding{
				f(finding.SeverityHigh, finding.CategorySecurity),
				f(finding.SeverityCritical, finding.CategoryCompliance),
				f(finding.SeverityLow, finding.CategoryCompliance),
				f(finding.SeverityInfo, finding.CategoryQuality),
			},
			want: finding.ScoreSet{
				SecurityScore: 75, ComplianceScore: 48, QualityScore: 100,
				OverallScore: 71.8, Grade: "C",
				TotalViolations: 4, CriticalViolations: 1, HighViolations: 1, LowViolations: 1, InfoViolations: 1,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.findings))
		})
	}
}

func TestScore_Invariants(t *testing.T) {
	severities := []finding.Severity{
		finding.SeverityCritical, finding.SeverityHigh, finding.SeverityMedium,
		finding.SeverityLow, finding.SeverityInfo, finding.Severity("unknown"),
	}
	categories := []finding.Category{
		finding.CategorySecurity, finding.CategoryCompliance, finding.CategoryQuality,
		finding.CategoryBestPractice, finding.Category("other"),
	}

	var set []finding.Finding
	for i := 0; i < 60; i++ {
		set = append(set, f(severities[(i*7)%len(severities)], categories[(i*3)%len(categories)]))

		s := Score(set)
		for _, v := range []float64{s.SecurityScore, s.ComplianceScore, s.QualityScore, s.OverallScore} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
		assert.Equal(t, len(set), s.TotalViolations)
		assert.LessOrEqual(t, s.CriticalViolations+s.HighViolations+s.MediumViolations+s.LowViolations, s.TotalViolations)

		withCritical := Score(append(append([]finding.Finding{}, set...), f(finding.SeverityCritical, categories[i%len(categories)])))
		assert.LessOrEqual(t, withCritical.OverallScore, s.OverallScore)
	}
}
