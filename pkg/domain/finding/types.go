// Package finding defines raw and enriched findings, violations and the
// compliance score model derived from them.
package finding

import "strings"

// Severity represents the severity level of a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// ParseSeverity lower-cases and trims s. Unknown values are returned as-is
// so they stay visible in reports; they carry no score penalty.
func ParseSeverity(s string) Severity {
	return Severity(strings.ToLower(strings.TrimSpace(s)))
}

// IsValid checks if the severity is one of the known levels.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// Penalty is the flat score deduction applied per finding of this severity.
func (s Severity) Penalty() float64 {
	switch s {
	case SeverityCritical:
		return 50
	case SeverityHigh:
		return 25
	case SeverityMedium:
		return 10
	case SeverityLow:
		return 2
	default:
		return 0
	}
}

// Priority returns the assigned remediation priority for the severity.
func (s Severity) Priority() Priority {
	switch s {
	case SeverityCritical:
		return PriorityP1
	case SeverityHigh:
		return PriorityP2
	case SeverityMedium:
		return PriorityP3
	default:
		return PriorityP4
	}
}

// Category represents the classification of a finding.
type Category string

const (
	CategorySecurity     Category = "security"
	CategoryCompliance   Category = "compliance"
	CategoryQuality      Category = "quality"
	CategoryBestPractice Category = "best_practice"
)

// IsValid checks if the category is one of the known categories.
func (c Category) IsValid() bool {
	switch c {
	case CategorySecurity, CategoryCompliance, CategoryQuality, CategoryBestPractice:
		return true
	}
	return false
}

// ScoringCategory folds best_practice (and anything unknown) into quality.
func (c Category) ScoringCategory() Category {
	switch c {
	case CategorySecurity, CategoryCompliance:
		return c
	default:
		return CategoryQuality
	}
}

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// Priority is the remediation priority assigned to a finding.
type Priority string

const (
	PriorityP1 Priority = "P1" // fix immediately
	PriorityP2 Priority = "P2" // within a week
	PriorityP3 Priority = "P3" // within a month
	PriorityP4 Priority = "P4" // when convenient
)

// Status represents the lifecycle status of a violation.
type Status string

const (
	StatusOpen          Status = "open"
	StatusInProgress    Status = "in_progress"
	StatusResolved      Status = "resolved"
	StatusWontFix       Status = "wont_fix"
	StatusFalsePositive Status = "false_positive"
)

// AllStatuses returns all valid violation statuses.
func AllStatuses() []Status {
	return []Status{StatusOpen, StatusInProgress, StatusResolved, StatusWontFix, StatusFalsePositive}
}

// IsValid checks if the status is a valid status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusWontFix, StatusFalsePositive:
		return true
	}
	return false
}

// IsOpen reports whether the violation still needs attention.
func (s Status) IsOpen() bool {
	return s == StatusOpen || s == StatusInProgress
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}
