package detector

import (
	"github.com/ppiankov/kubesentry/internal/models"
	corev1 "k8s.io/api/core/v1"
)

// Health is the per-tick rollup of a snapshot and its issues.
type Health struct {
	TotalNodes     int `json:"nodes_total"`
	ReadyNodes     int `json:"nodes_ready"`
	TotalPods      int `json:"pods_total"`
	RunningPods    int `json:"pods_running"`
	PendingPods    int `json:"pods_pending"`
	FailedPods     int `json:"pods_failed"`
	SucceededPods  int `json:"pods_succeeded"`
	UnknownPods    int `json:"pods_unknown"`
	IssueCount     int `json:"issues_count"`
	CriticalIssues int `json:"critical_issues"`
	HighIssues     int `json:"high_issues"`

	// BasicHealthy: every node ready (at least one) and no failed or pending pods.
	BasicHealthy bool `json:"basic_healthy"`

	// Healthy is BasicHealthy with no critical or high issues. It gates
	// investigations.
	Healthy bool `json:"healthy"`
}

// Assess counts nodes and pod phases and applies both health rules.
func Assess(pods []corev1.Pod, nodes []corev1.Node, issues []models.Issue) Health {
	var h Health

	h.TotalNodes = len(nodes)
	for i := range nodes {
		if NodeReady(&nodes[i]) {
			h.ReadyNodes++
		}
	}

	h.TotalPods = len(pods)
	for i := range pods {
		switch pods[i].Status.Phase {
		case corev1.PodRunning:
			h.RunningPods++
		case corev1.PodPending:
			h.PendingPods++
		case corev1.PodFailed:
			h.FailedPods++
		case corev1.PodSucceeded:
			h.SucceededPods++
		default:
			h.UnknownPods++
		}
	}

	counts := models.CountBySeverity(issues)
	h.IssueCount = len(issues)
	h.CriticalIssues = counts[models.SeverityCritical]
	h.HighIssues = counts[models.SeverityHigh]

	h.BasicHealthy = h.TotalNodes > 0 && h.ReadyNodes == h.TotalNodes && h.FailedPods == 0 && h.PendingPods == 0
	h.Healthy = h.BasicHealthy && h.CriticalIssues == 0 && h.HighIssues == 0
	return h
}

// NodeReady reports whether the Ready condition is True. A node without a
// Ready condition is not ready.
func NodeReady(node *corev1.Node) bool {
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// Status is the coarse label published to the dashboard.
func (h Health) Status() string {
	switch {
	case h.Healthy:
		return "healthy"
	case h.CriticalIssues > 0:
		return "critical_issues"
	case h.HighIssues > 0:
		return "high_issues"
	default:
		return "issues_detected"
	}
}
