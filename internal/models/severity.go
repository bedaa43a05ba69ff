package models

import "strings"

// Severity is the ordinal rank shared by issues, findings and reports.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
	SeverityUnknown  Severity = "unknown" // Unparseable input, sorts last
)

// Severities lists the reportable severities from most to least severe.
// SeverityUnknown is deliberately absent.
var Severities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityInfo,
}

// ParseSeverity maps free text to a Severity. Anything unrecognised becomes
// SeverityUnknown rather than an error.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "fatal":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium", "warning":
		return SeverityMedium
	case "low":
		return SeverityLow
	case "info":
		return SeverityInfo
	default:
		return SeverityUnknown
	}
}

// Rank returns the sort position (0 is most severe).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	case SeverityInfo:
		return 4
	default:
		return 5
	}
}

// Valid reports whether s is one of the five reportable severities.
func (s Severity) Valid() bool {
	return s.Rank() < 5
}

// MoreSevere reports whether s ranks strictly above other.
func (s Severity) MoreSevere(other Severity) bool {
	return s.Rank() < other.Rank()
}

// Icon returns the console marker for a severity.
func (s Severity) Icon() string {
	switch s {
	case SeverityCritical:
		return "🔴"
	case SeverityHigh:
		return "🟠"
	case SeverityMedium:
		return "🟡"
	case SeverityLow:
		return "🔵"
	case SeverityInfo:
		return "⚪"
	default:
		return "⚪"
	}
}

// Upper is the label used in text reports, e.g. "HIGH".
func (s Severity) Upper() string {
	return strings.ToUpper(string(s))
}
