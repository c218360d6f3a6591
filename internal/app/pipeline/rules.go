package pipeline

import (
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/auditflow/api/pkg/domain/finding"
)

// keywordRule maps any of its keywords to a value. Rules are evaluated in
// table order; the first rule with a matching keyword wins.
type keywordRule[T any] struct {
	keywords []string
	value    T
}

// ruleTable matches all keywords of an ordered rule list in one pass.
type ruleTable[T any] struct {
	rules    []keywordRule[T]
	matcher  *ahocorasick.Matcher
	termRule []int // dictionary index -> rule index
	fallback T
}

func newRuleTable[T any](rules []keywordRule[T], fallback T) *ruleTable[T] {
	var (
		terms    []string
		termRule []int
	)
	for i, r := range rules {
		for _, kw := range r.keywords {
			terms = append(terms, strings.ToLower(kw))
			termRule = append(termRule, i)
		}
	}
	return &ruleTable[T]{
		rules:    rules,
		matcher:  ahocorasick.NewStringMatcher(terms),
		termRule: termRule,
		fallback: fallback,
	}
}

// lookup returns the value of the earliest rule matching text, or the fallback.
func (t *ruleTable[T]) lookup(text string) T {
	best := -1
	for _, hit := range t.matcher.MatchThreadSafe([]byte(strings.ToLower(text))) {
		if r := t.termRule[hit]; best == -1 || r < best {
			best = r
		}
	}
	if best == -1 {
		return t.fallback
	}
	return t.rules[best].value
}

var categoryRules = []keywordRule[finding.Category]{
	{
		keywords: []string{
			"security", "vulnerab", "injection", "xss", "csrf", "ssrf", "traversal",
			"secret", "password", "credential", "auth", "crypt", "token", "cve",
			"sensitive", "exposure", "unsafe", "deserializ",
		},
		value: finding.CategorySecurity,
	},
	{
		keywords: []string{
			"compliance", "gdpr", "hipaa", "pci", "sox", "ccpa", "license", "privacy",
			"pii", "personal data", "retention", "consent", "regulat", "audit",
		},
		value: finding.CategoryCompliance,
	},
	{
		keywords: []string{
			"best_practice", "best practice", "convention", "style", "naming",
			"lint", "documentation", "deprecat", "idiom",
		},
		value: finding.CategoryBestPractice,
	},
	{
		keywords: []string{
			"quality", "performance", "maintainab", "complexity", "duplicat",
			"bug", "error", "smell", "readability", "dead code", "test",
		},
		value: finding.CategoryQuality,
	},
}

// DefaultComplianceImpact is assigned when no compliance keyword matches.
var DefaultComplianceImpact = []string{"General Compliance"}

var complianceRules = []keywordRule[[]string]{
	{
		keywords: []string{"encrypt", "crypt", "cipher", "tls", "ssl", "plaintext", "hash"},
		value:    []string{"PCI-DSS", "HIPAA", "GDPR", "SOC 2"},
	},
	{
		keywords: []string{"password", "credential", "secret", "api key", "api_key", "token", "auth", "session"},
		value:    []string{"PCI-DSS", "SOC 2", "ISO 27001"},
	},
	{
		keywords: []string{"pii", "personal", "privacy", "gdpr", "consent", "email address", "tracking"},
		value:    []string{"GDPR", "CCPA"},
	},
	{
		keywords: []string{"health", "hipaa", "medical", "patient", "phi"},
		value:    []string{"HIPAA"},
	},
	{
		keywords: []string{"payment", "card", "pci", "cardholder"},
		value:    []string{"PCI-DSS"},
	},
	{
		keywords: []string{"injection", "xss", "csrf", "ssrf", "traversal", "deserializ"},
		value:    []string{"OWASP Top 10", "PCI-DSS"},
	},
	{
		keywords: []string{"logging", "audit", "monitor", "access control"},
		value:    []string{"SOC 2", "ISO 27001"},
	},
}

var fixTimeBySeverity = map[finding.Severity]string{
	finding.SeverityCritical: "4-8 hours",
	finding.SeverityHigh:     "1-2 days",
	finding.SeverityMedium:   "3-5 days",
	finding.SeverityLow:      "1-2 weeks",
	finding.SeverityInfo:     "As time permits",
}

var riskBySeverity = map[finding.Severity]string{
	finding.SeverityCritical: "Critical",
	finding.SeverityHigh:     "High",
	finding.SeverityMedium:   "Medium",
	finding.SeverityLow:      "Low",
	finding.SeverityInfo:     "Minimal",
}
