package detector

import (
	"fmt"
	"testing"
	"time"

	"github.com/ppiankov/kubesentry/internal/cluster"
	"github.com/ppiankov/kubesentry/internal/models"
	"github.com/stretchr/testify/assert"
	corev1 "k8s.io/api/core/v1"
)

func readyNodes(n int) []corev1.Node {
	nodes := make([]corev1.Node, 0, n)
	for i := 0; i < n; i++ {
		nodes = append(nodes, cluster.ReadyNode(fmt.Sprintf("node-%d", i)))
	}
	return nodes
}

func runningPods(n int) []corev1.Pod {
	pods := make([]corev1.Pod, 0, n)
	for i := 0; i < n; i++ {
		pods = append(pods, cluster.RunningPod("default", fmt.Sprintf("pod-%d", i)))
	}
	return pods
}

func TestAssess_AllReady(t *testing.T) {
	h := Assess(runningPods(10), readyNodes(3), nil)
	assert.True(t, h.BasicHealthy)
	assert.True(t, h.Healthy)
	assert.Equal(t, 3, h.ReadyNodes)
	assert.Equal(t, 10, h.RunningPods)
	assert.Equal(t, "healthy", h.Status())
}

func TestAssess_NodeNotReady(t *testing.T) {
	nodes := append(readyNodes(2), cluster.NotReadyNode("down"))
	h := Assess(runningPods(10), nodes, nil)
	assert.False(t, h.BasicHealthy)
	assert.False(t, h.Healthy)
	assert.Equal(t, 2, h.ReadyNodes)
	assert.Equal(t, 3, h.TotalNodes)
}

func TestAssess_NoNodesIsUnhealthy(t *testing.T) {
	h := Assess(nil, nil, nil)
	assert.False(t, h.BasicHealthy)
	assert.Equal(t, "issues_detected", h.Status())
}

func TestAssess_BasicHealthRule(t *testing.T) {
	cases := []struct {
		name string
		pods []corev1.Pod
		want bool
	}{
		{"running only", runningPods(4), true},
		{"failed pod", append(runningPods(2), cluster.FailedPod("default", "f")), false},
		{"pending pod", append(runningPods(2), cluster.PendingPod("default", "p", now)), false},
		{"no pods", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := Assess(tc.pods, readyNodes(3), nil)
			assert.Equal(t, tc.want, h.BasicHealthy)
		})
	}
}

func TestAssess_PhaseCountsSumToTotal(t *testing.T) {
	pods := append(runningPods(3),
		cluster.FailedPod("default", "f"),
		cluster.PendingPod("default", "p", now),
		corev1.Pod{Status: corev1.PodStatus{Phase: corev1.PodSucceeded}},
		corev1.Pod{},
	)
	h := Assess(pods, readyNodes(1), nil)
	assert.Equal(t, h.TotalPods, h.RunningPods+h.FailedPods+h.PendingPods+h.SucceededPods+h.UnknownPods)
	assert.Equal(t, 1, h.UnknownPods)
}

func TestAssess_HighIssueMakesUnhealthy(t *testing.T) {
	issues := []models.Issue{{Severity: models.SeverityHigh, DetectedAt: time.Now()}}
	h := Assess(runningPods(5), readyNodes(3), issues)
	assert.True(t, h.BasicHealthy)
	assert.False(t, h.Healthy)
	assert.Equal(t, 1, h.HighIssues)
	assert.Equal(t, "high_issues", h.Status())

	issues = append(issues, models.Issue{Severity: models.SeverityCritical})
	assert.Equal(t, "critical_issues", Assess(runningPods(5), readyNodes(3), issues).Status())
}

func TestAssess_MediumIssueStaysHealthy(t *testing.T) {
	issues := []models.Issue{{Severity: models.SeverityMedium}}
	h := Assess(runningPods(5), readyNodes(3), issues)
	assert.True(t, h.Healthy)
	assert.Equal(t, 1, h.IssueCount)
}
