package pipeline

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/auditflow/api/pkg/domain/finding"
)

// Enricher turns raw findings into enriched findings. Apart from the
// violation id and discovered date, the output depends only on the input.
type Enricher struct {
	newID      func() string
	now        func() time.Time
	categories *ruleTable[finding.Category]
	compliance *ruleTable[[]string]
}

// EnricherOption configures an Enricher.
type EnricherOption func(*Enricher)

// WithIDGenerator overrides the violation id generator.
func WithIDGenerator(fn func() string) EnricherOption {
	return func(e *Enricher) {
		e.newID = fn
	}
}

// WithClock overrides the clock used for discovered dates.
func WithClock(fn func() time.Time) EnricherOption {
	return func(e *Enricher) {
		e.now = fn
	}
}

// NewEnricher creates an Enricher with the built-in rule tables.
func NewEnricher(opts ...EnricherOption) *Enricher {
	e := &Enricher{
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
		categories: newRuleTable(categoryRules, finding.CategoryQuality),
		compliance: newRuleTable(complianceRules, DefaultComplianceImpact),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich enriches every raw finding. All findings of one call share the
// same discovered date.
func (e *Enricher) Enrich(raw []finding.Raw) []finding.Finding {
	now := e.now()
	out := make([]finding.Finding, 0, len(raw))
	for _, r := range raw {
		out = append(out, e.enrichOne(r, now))
	}
	return out
}

func (e *Enricher) enrichOne(r finding.Raw, now time.Time) finding.Finding {
	severity := finding.ParseSeverity(string(r.Severity))

	return finding.Finding{
		ViolationID:      e.newID(),
		Type:             r.Type,
		Category:         e.InferCategory(r.Type, r.Category),
		Severity:         severity,
		Description:      r.Description,
		Recommendation:   r.Recommendation,
		Location:         r.Location,
		Line:             r.Line,
		DiscoveredDate:   now,
		Status:           finding.StatusOpen,
		AssignedPriority: severity.Priority(),
		EstimatedFixTime: lookupOr(fixTimeBySeverity, severity, "Unknown"),
		ComplianceImpact: slices.Clone(e.compliance.lookup(r.Type + " " + r.Description)),
		RiskLevel:        lookupOr(riskBySeverity, severity, "Unknown"),
	}
}

// InferCategory keeps a known category and otherwise classifies the
// finding from its type and category text.
func (e *Enricher) InferCategory(findingType, category string) finding.Category {
	c := finding.Category(strings.ToLower(strings.TrimSpace(category)))
	if c.IsValid() {
		return c
	}
	return e.categories.lookup(findingType + " " + category)
}

func lookupOr[K comparable, V any](m map[K]V, k K, fallback V) V {
	if v, ok := m[k]; ok {
		return v
	}
	return fallback
}
