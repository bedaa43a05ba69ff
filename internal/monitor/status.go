package monitor

import (
	"fmt"
	"time"

	"github.com/ppiankov/kubesentry/internal/detector"
	"github.com/ppiankov/kubesentry/internal/models"
)

// MaxListedIssues is how many issues a tick prints before summarizing the rest.
const MaxListedIssues = 3

const investigatingSuffix = " | 🔍 Investigation in progress..."

// StatusLine renders one tick, e.g.
// "🟠 [14:30:00] HIGH severity issues detected (1 high) - 3/3 nodes, 4 running, 1 pending".
func StatusLine(now time.Time, h detector.Health, investigating bool) string {
	icon, status := "⚠️ ", "Cluster issues detected"
	switch {
	case h.Healthy:
		icon, status = "✅", "Cluster healthy"
	case h.CriticalIssues > 0:
		icon, status = "🔴", fmt.Sprintf("CRITICAL issues detected (%d critical)", h.CriticalIssues)
	case h.HighIssues > 0:
		icon, status = "🟠", fmt.Sprintf("HIGH severity issues detected (%d high)", h.HighIssues)
	case h.IssueCount > 0:
		icon, status = "🟡", fmt.Sprintf("Issues detected (%d total)", h.IssueCount)
	}

	pods := fmt.Sprintf("%d running", h.RunningPods)
	if h.FailedPods > 0 {
		pods += fmt.Sprintf(", %d failed", h.FailedPods)
	}
	if h.PendingPods > 0 {
		pods += fmt.Sprintf(", %d pending", h.PendingPods)
	}

	line := fmt.Sprintf("%s [%s] %s - %d/%d nodes, %s", icon, now.Format("15:04:05"), status, h.ReadyNodes, h.TotalNodes, pods)
	if investigating {
		line += investigatingSuffix
	}
	return line
}

// FailureLine renders a tick that could not fetch cluster data. Counts are
// not shown: stale numbers would be misleading.
func FailureLine(now time.Time, err error, investigating bool) string {
	line := fmt.Sprintf("❌ [%s] Health check failed: %v", now.Format("15:04:05"), err)
	if investigating {
		line += investigatingSuffix
	}
	return line
}

// IssueLines lists the most severe issues followed by a count of the rest.
func IssueLines(issues []models.Issue) []string {
	top := models.TopIssues(issues, MaxListedIssues)
	lines := make([]string, 0, len(top)+1)
	for _, is := range top {
		lines = append(lines, fmt.Sprintf("%s %s: %s", is.Severity.Icon(), is.Reason, is.Resource))
	}
	if rest := len(issues) - len(top); rest > 0 {
		lines = append(lines, fmt.Sprintf("... and %d more issues", rest))
	}
	return lines
}
