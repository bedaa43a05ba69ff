package models

import (
	"fmt"
	"sort"
	"time"
)

// IssueKind identifies which detection rule produced an Issue.
type IssueKind string

const (
	KindPodWaiting           IssueKind = "PodWaiting"
	KindPodTerminatedNonZero IssueKind = "PodTerminatedNonZero"
	KindPodStuckPending      IssueKind = "PodStuckPending"
	KindNodeNotReady         IssueKind = "NodeNotReady"
	KindNodePressure         IssueKind = "NodePressure"
	KindWarningEvent         IssueKind = "WarningEvent"
	KindUnknown              IssueKind = "Unknown"
)

// Issue is one anomaly observed during a single poll. Issues are values:
// they are rebuilt on every tick and never mutated.
type Issue struct {
	Kind       IssueKind `json:"kind"`
	Severity   Severity  `json:"severity"`
	Resource   string    `json:"resource"` // namespace/name, or bare name for cluster-scoped objects
	Container  string    `json:"container,omitempty"`
	Reason     string    `json:"reason"`
	Message    string    `json:"message"`
	DetectedAt time.Time `json:"detected_at"`
}

// String renders the one-line form used in status output.
func (i Issue) String() string {
	return fmt.Sprintf("%s %s: %s - %s", i.Severity.Icon(), i.Severity.Upper(), i.Reason, i.Resource)
}

// SortIssues returns a copy of issues ordered by severity rank. Ties keep
// detection order.
func SortIssues(issues []Issue) []Issue {
	sorted := make([]Issue, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Severity.Rank() < sorted[b].Severity.Rank()
	})
	return sorted
}

// TopIssues returns at most n issues, most severe first.
func TopIssues(issues []Issue, n int) []Issue {
	sorted := SortIssues(issues)
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// CountBySeverity tallies issues per severity.
func CountBySeverity(issues []Issue) map[Severity]int {
	counts := make(map[Severity]int)
	for _, i := range issues {
		counts[i.Severity]++
	}
	return counts
}
