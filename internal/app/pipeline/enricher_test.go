package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/api/pkg/domain/finding"
)

func fixedEnricher() *Enricher {
	n := 0
	return NewEnricher(
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("v-%d", n)
		}),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }),
	)
}

func TestEnricher_Enrich(t *testing.T) {
	raw := []finding.Raw{{
		Type:           "hardcoded_secret",
		Category:       "security",
		Severity:       finding.SeverityCritical,
		Description:    "Database password committed in source",
		Recommendation: "Use a secret manager",
		Location:       "config.py",
		Line:           12,
	}}

	out := fixedEnricher().Enrich(raw)
	require.Len(t, out, 1)

	assert.Equal(t, finding.Finding{
		ViolationID:      "v-1",
		Type:             "hardcoded_secret",
		Category:         finding.CategorySecurity,
		Severity:         finding.SeverityCritical,
		Description:      "Database password committed in source",
		Recommendation:   "Use a secret manager",
		Location:         "config.py",
		Line:             12,
		DiscoveredDate:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:           finding.StatusOpen,
		AssignedPriority: finding.PriorityP1,
		EstimatedFixTime: "4-8 hours",
		ComplianceImpact: []string{"PCI-DSS", "SOC 2", "ISO 27001"},
		RiskLevel:        "Critical",
	}, out[0])
}

func TestEnricher_PriorityFromSeverity(t *testing.T) {
	tests := []struct {
		severity finding.Severity
		want     finding.Priority
		risk     string
	}{
		{finding.SeverityCritical, finding.PriorityP1, "Critical"},
		{finding.SeverityHigh, finding.PriorityP2, "High"},
		{finding.SeverityMedium, finding.PriorityP3, "Medium"},
		{finding.SeverityLow, finding.PriorityP4, "Low"},
		{finding.SeverityInfo, finding.PriorityP4, "Minimal"},
		{finding.Severity("Bogus"), finding.PriorityP4, "Unknown"},
	}
	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			out := fixedEnricher().Enrich([]finding.Raw{{Type: "x", Severity: tt.severity}})
			require.Len(t, out, 1)
			assert.Equal(t, tt.want, out[0].AssignedPriority)
			assert.Equal(t, tt.risk, out[0].RiskLevel)
		})
	}
}

func TestEnricher_InferCategory(t *testing.T) {
	tests := []struct {
		findingType string
		category    string
		want        finding.Category
	}{
		{"sql_injection", "", finding.CategorySecurity},
		{"anything", "SECURITY", finding.CategorySecurity},
		{"anything", "best_practice", finding.CategoryBestPractice},
		{"gdpr_violation", "legal", finding.CategoryCompliance},
		{"naming_convention", "", finding.CategoryBestPractice},
		{"slow_loop", "performance", finding.CategoryQuality},
		{"weird", "", finding.CategoryQuality},
		{finding.TypeAnalysisError, "quality", finding.CategoryQuality},
		// earliest rule wins when several match
		{"auth_audit_gap", "", finding.CategorySecurity},
	}
	e := NewEnricher()
	for _, tt := range tests {
		t.Run(tt.findingType+"/"+tt.category, func(t *testing.T) {
			assert.Equal(t, tt.want, e.InferCategory(tt.findingType, tt.category))
		})
	}
}

func TestEnricher_ComplianceImpact(t *testing.T) {
	tests := []struct {
		name        string
		findingType string
		description string
		want        []string
	}{
		{"encryption", "weak_transport", "Data transmitted without TLS", []string{"PCI-DSS", "HIPAA", "GDPR", "SOC 2"}},
		{"privacy", "data_leak", "Logs personal information of users", []string{"GDPR", "CCPA"}},
		{"injection", "xss", "Unescaped output in template", []string{"OWASP Top 10", "PCI-DSS"}},
		{"no keyword", "long_function", "Function is too long", []string{"General Compliance"}},
	}
	e := NewEnricher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.Enrich([]finding.Raw{{Type: tt.findingType, Description: tt.description, Severity: finding.SeverityLow}})
			require.Len(t, out, 1)
			assert.Equal(t, tt.want, out[0].ComplianceImpact)
		})
	}
}

func TestEnricher_DefaultImpactNotShared(t *testing.T) {
	e := NewEnricher()
	out := e.Enrich([]finding.Raw{{Type: "a"}, {Type: "b"}})
	require.Len(t, out, 2)
	out[0].ComplianceImpact[0] = "mutated"
	assert.Equal(t, "General Compliance", out[1].ComplianceImpact[0])
	assert.Equal(t, "General Compliance", DefaultComplianceImpact[0])
}

func TestEnricher_UniqueIDs(t *testing.T) {
	out := NewEnricher().Enrich([]finding.Raw{{Type: "a"}, {Type: "b"}, {Type: "c"}})
	seen := map[string]bool{}
	for _, f := range out {
		assert.NotEmpty(t, f.ViolationID)
		assert.False(t, seen[f.ViolationID])
		seen[f.ViolationID] = true
	}
}
