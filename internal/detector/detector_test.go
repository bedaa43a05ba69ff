package detector

import (
	"fmt"
	"testing"
	"time"

	"github.com/ppiankov/kubesentry/internal/cluster"
	"github.com/ppiankov/kubesentry/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
)

var now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func TestDetectPods_WaitingReasons(t *testing.T) {
	cases := map[string]models.Severity{
		"CrashLoopBackOff":           models.SeverityHigh,
		"ImagePullBackOff":           models.SeverityMedium,
		"ErrImagePull":               models.SeverityMedium,
		"InvalidImageName":           models.SeverityMedium,
		"CreateContainerConfigError": models.SeverityMedium,
	}
	for reason, want := range cases {
		t.Run(reason, func(t *testing.T) {
			issues := DetectPods([]corev1.Pod{cluster.WaitingPod("default", "web", reason, 3)}, now)
			require.Len(t, issues, 1)
			assert.Equal(t, models.KindPodWaiting, issues[0].Kind)
			assert.Equal(t, want, issues[0].Severity)
			assert.Equal(t, "default/web", issues[0].Resource)
			assert.Equal(t, "app", issues[0].Container)
			assert.Equal(t, reason, issues[0].Reason)
			assert.Equal(t, now, issues[0].DetectedAt)
		})
	}
}

func TestDetectPods_IgnoredWaitingReason(t *testing.T) {
	issues := DetectPods([]corev1.Pod{cluster.WaitingPod("default", "web", "ContainerCreating", 0)}, now)
	assert.Empty(t, issues)
}

func TestDetectPods_InitContainersIncluded(t *testing.T) {
	pod := cluster.RunningPod("default", "web")
	pod.Status.InitContainerStatuses = []corev1.ContainerStatus{{
		Name:  "migrate",
		State: corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{Reason: "CrashLoopBackOff"}},
	}}

	issues := DetectPods([]corev1.Pod{pod}, now)
	require.Len(t, issues, 1)
	assert.Equal(t, "migrate", issues[0].Container)
}

func TestDetectPods_TerminatedNonZero(t *testing.T) {
	pod := cluster.RunningPod("batch", "job-1")
	pod.Status.ContainerStatuses[0].State = corev1.ContainerState{
		Terminated: &corev1.ContainerStateTerminated{ExitCode: 137, Reason: "OOMKilled"},
	}
	ok := cluster.RunningPod("batch", "job-2")
	ok.Status.ContainerStatuses[0].State = corev1.ContainerState{
		Terminated: &corev1.ContainerStateTerminated{ExitCode: 0, Reason: "Completed"},
	}

	issues := DetectPods([]corev1.Pod{pod, ok}, now)
	require.Len(t, issues, 1)
	assert.Equal(t, models.KindPodTerminatedNonZero, issues[0].Kind)
	assert.Equal(t, models.SeverityHigh, issues[0].Severity)
	assert.Equal(t, "OOMKilled", issues[0].Reason)
	assert.Contains(t, issues[0].Message, "137")
}

func TestDetectPods_Pending(t *testing.T) {
	fresh := cluster.PendingPod("default", "fresh", now.Add(-10*time.Second))
	boundary := cluster.PendingPod("default", "boundary", now.Add(-30*time.Second))
	stuck := cluster.PendingPod("default", "stuck", now.Add(-45*time.Second))
	noTimestamp := cluster.PendingPod("default", "anon", time.Time{})
	noTimestamp.CreationTimestamp.Time = time.Time{}

	issues := DetectPods([]corev1.Pod{fresh, boundary, stuck, noTimestamp}, now)
	require.Len(t, issues, 1)
	assert.Equal(t, models.KindPodStuckPending, issues[0].Kind)
	assert.Equal(t, models.SeverityMedium, issues[0].Severity)
	assert.Equal(t, "default/stuck", issues[0].Resource)
	assert.Equal(t, "Pod pending for 45 seconds", issues[0].Message)
}

func TestDetectPods_NoCrossRuleDedup(t *testing.T) {
	pod := cluster.WaitingPod("default", "web", "CrashLoopBackOff", 5)
	pod.Status.ContainerStatuses = append(pod.Status.ContainerStatuses, corev1.ContainerStatus{
		Name:  "sidecar",
		State: corev1.ContainerState{Terminated: &corev1.ContainerStateTerminated{ExitCode: 1}},
	})

	issues := DetectPods([]corev1.Pod{pod}, now)
	require.Len(t, issues, 2)
	assert.Equal(t, "Error", issues[1].Reason)
}

func TestDetectPods_EmptyStatusTolerated(t *testing.T) {
	assert.Empty(t, DetectPods([]corev1.Pod{{}}, now))
	assert.Empty(t, DetectPods(nil, now))
}

func TestDetectNodes(t *testing.T) {
	nodes := []corev1.Node{
		cluster.ReadyNode("ok"),
		cluster.NotReadyNode("down"),
		cluster.NodeWithConditions("unknown", corev1.NodeCondition{Type: corev1.NodeReady, Status: corev1.ConditionUnknown}),
		cluster.NodeWithConditions("mem",
			corev1.NodeCondition{Type: corev1.NodeReady, Status: corev1.ConditionTrue},
			corev1.NodeCondition{Type: corev1.NodeMemoryPressure, Status: corev1.ConditionTrue},
			corev1.NodeCondition{Type: corev1.NodeDiskPressure, Status: corev1.ConditionTrue},
			corev1.NodeCondition{Type: corev1.NodePIDPressure, Status: corev1.ConditionFalse},
		),
	}

	issues := DetectNodes(nodes, now)
	require.Len(t, issues, 4)

	assert.Equal(t, models.KindNodeNotReady, issues[0].Kind)
	assert.Equal(t, models.SeverityCritical, issues[0].Severity)
	assert.Equal(t, "down", issues[0].Resource)
	assert.Equal(t, "kubelet stopped posting node status", issues[0].Message)

	assert.Equal(t, "unknown", issues[1].Resource)
	assert.Equal(t, models.SeverityCritical, issues[1].Severity)

	assert.Equal(t, models.KindNodePressure, issues[2].Kind)
	assert.Equal(t, "MemoryPressure", issues[2].Reason)
	assert.Equal(t, models.SeverityHigh, issues[2].Severity)

	assert.Equal(t, "DiskPressure", issues[3].Reason)
	assert.Equal(t, models.SeverityMedium, issues[3].Severity)
}

func TestDetectEvents_FiltersTypeAndReason(t *testing.T) {
	events := []corev1.Event{
		cluster.WarningEvent("default", "web", "BackOff", "Back-off restarting", now.Add(-time.Minute)),
		cluster.WarningEvent("default", "web", "SomethingElse", "ignored", now.Add(-time.Minute)),
	}
	normal := cluster.WarningEvent("default", "web", "Failed", "normal type", now)
	normal.Type = corev1.EventTypeNormal
	events = append(events, normal)

	issues := DetectEvents(events, now)
	require.Len(t, issues, 1)
	assert.Equal(t, models.KindWarningEvent, issues[0].Kind)
	assert.Equal(t, models.SeverityMedium, issues[0].Severity)
	assert.Equal(t, "default/Pod/web", issues[0].Resource)
}

func TestDetectEvents_OnlyRecentWindow(t *testing.T) {
	var events []corev1.Event
	// 5 old warnings, then 20 newer normal events
	for i := 0; i < 5; i++ {
		events = append(events, cluster.WarningEvent("default", fmt.Sprintf("old-%d", i), "Failed", "old", now.Add(-time.Hour)))
	}
	for i := 0; i < 20; i++ {
		ev := cluster.WarningEvent("default", fmt.Sprintf("new-%d", i), "Pulled", "fine", now.Add(-time.Duration(i)*time.Second))
		ev.Type = corev1.EventTypeNormal
		events = append(events, ev)
	}

	assert.Empty(t, DetectEvents(events, now))
}

func TestRecentEvents_OrderAndCap(t *testing.T) {
	events := []corev1.Event{
		cluster.WarningEvent("ns", "c", "Failed", "", now),
		cluster.WarningEvent("ns", "a", "Failed", "", now.Add(-2*time.Minute)),
		cluster.WarningEvent("ns", "b", "Failed", "", now.Add(-time.Minute)),
	}

	recent := RecentEvents(events, 2)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].InvolvedObject.Name)
	assert.Equal(t, "c", recent[1].InvolvedObject.Name)
}

func TestDetect_CrashLoopSnapshot(t *testing.T) {
	snap := &cluster.Snapshot{
		Pods:    []corev1.Pod{cluster.WaitingPod("default", "web", "CrashLoopBackOff", 4)},
		Nodes:   []corev1.Node{cluster.ReadyNode("n1")},
		TakenAt: now,
	}

	issues := Detect(snap)
	require.Len(t, issues, 1)
	assert.Equal(t, models.SeverityHigh, issues[0].Severity)
	assert.Nil(t, Detect(nil))
}
