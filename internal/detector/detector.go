// Package detector turns raw cluster objects into typed issues.
// Every function here is pure: the same input and clock give the same output.
package detector

import (
	"fmt"
	"sort"
	"time"

	"github.com/ppiankov/kubesentry/internal/cluster"
	"github.com/ppiankov/kubesentry/internal/models"
	corev1 "k8s.io/api/core/v1"
)

const (
	// PendingThreshold is how long a pod may sit in Pending before it is an issue.
	PendingThreshold = 30 * time.Second

	// RecentEventWindow is how many of the newest events are inspected.
	RecentEventWindow = 20
)

var problemWaitingReasons = map[string]bool{
	"CrashLoopBackOff":           true,
	"ImagePullBackOff":           true,
	"ErrImagePull":               true,
	"InvalidImageName":           true,
	"CreateContainerConfigError": true,
}

var warningEventReasons = map[string]bool{
	"Failed":             true,
	"Unhealthy":          true,
	"BackOff":            true,
	"FailedMount":        true,
	"FailedAttachVolume": true,
	"FailedScheduling":   true,
}

// Detect runs every rule over a snapshot. Order: pods, nodes, events.
func Detect(snap *cluster.Snapshot) []models.Issue {
	if snap == nil {
		return nil
	}
	var issues []models.Issue
	issues = append(issues, DetectPods(snap.Pods, snap.TakenAt)...)
	issues = append(issues, DetectNodes(snap.Nodes, snap.TakenAt)...)
	issues = append(issues, DetectEvents(snap.Events, snap.TakenAt)...)
	return issues
}

// DetectPods inspects container states (init containers included) and
// long-pending pods. A pod may yield several issues.
func DetectPods(pods []corev1.Pod, now time.Time) []models.Issue {
	var issues []models.Issue
	for i := range pods {
		pod := &pods[i]
		resource := podResource(pod)

		statuses := make([]corev1.ContainerStatus, 0, len(pod.Status.InitContainerStatuses)+len(pod.Status.ContainerStatuses))
		statuses = append(statuses, pod.Status.InitContainerStatuses...)
		statuses = append(statuses, pod.Status.ContainerStatuses...)

		for _, cs := range statuses {
			if w := cs.State.Waiting; w != nil && problemWaitingReasons[w.Reason] {
				severity := models.SeverityMedium
				if w.Reason == "CrashLoopBackOff" {
					severity = models.SeverityHigh
				}
				msg := w.Message
				if msg == "" {
					msg = fmt.Sprintf("Container %s waiting: %s (restarts: %d)", cs.Name, w.Reason, cs.RestartCount)
				}
				issues = append(issues, models.Issue{
					Kind:       models.KindPodWaiting,
					Severity:   severity,
					Resource:   resource,
					Container:  cs.Name,
					Reason:     w.Reason,
					Message:    msg,
					DetectedAt: now,
				})
			}

			if term := cs.State.Terminated; term != nil && term.ExitCode != 0 {
				reason := term.Reason
				if reason == "" {
					reason = "Error"
				}
				issues = append(issues, models.Issue{
					Kind:       models.KindPodTerminatedNonZero,
					Severity:   models.SeverityHigh,
					Resource:   resource,
					Container:  cs.Name,
					Reason:     reason,
					Message:    fmt.Sprintf("Container %s terminated with exit code %d", cs.Name, term.ExitCode),
					DetectedAt: now,
				})
			}
		}

		if pod.Status.Phase == corev1.PodPending && !pod.CreationTimestamp.IsZero() {
			age := now.Sub(pod.CreationTimestamp.Time)
			if age > PendingThreshold {
				issues = append(issues, models.Issue{
					Kind:       models.KindPodStuckPending,
					Severity:   models.SeverityMedium,
					Resource:   resource,
					Reason:     "Pending",
					Message:    fmt.Sprintf("Pod pending for %d seconds", int(age.Seconds())),
					DetectedAt: now,
				})
			}
		}
	}
	return issues
}

// DetectNodes checks readiness and pressure conditions.
func DetectNodes(nodes []corev1.Node, now time.Time) []models.Issue {
	var issues []models.Issue
	for i := range nodes {
		node := &nodes[i]
		for _, cond := range node.Status.Conditions {
			switch cond.Type {
			case corev1.NodeReady:
				if cond.Status != corev1.ConditionTrue {
					issues = append(issues, models.Issue{
						Kind:       models.KindNodeNotReady,
						Severity:   models.SeverityCritical,
						Resource:   node.Name,
						Reason:     "NodeNotReady",
						Message:    conditionMessage(cond, "Node is not ready"),
						DetectedAt: now,
					})
				}
			case corev1.NodeMemoryPressure, corev1.NodeDiskPressure, corev1.NodePIDPressure:
				if cond.Status == corev1.ConditionTrue {
					severity := models.SeverityMedium
					if cond.Type == corev1.NodeMemoryPressure {
						severity = models.SeverityHigh
					}
					issues = append(issues, models.Issue{
						Kind:       models.KindNodePressure,
						Severity:   severity,
						Resource:   node.Name,
						Reason:     string(cond.Type),
						Message:    conditionMessage(cond, fmt.Sprintf("Node has %s", cond.Type)),
						DetectedAt: now,
					})
				}
			}
		}
	}
	return issues
}

// DetectEvents looks at the RecentEventWindow newest events only.
func DetectEvents(events []corev1.Event, now time.Time) []models.Issue {
	var issues []models.Issue
	for _, ev := range RecentEvents(events, RecentEventWindow) {
		if ev.Type != corev1.EventTypeWarning || !warningEventReasons[ev.Reason] {
			continue
		}
		issues = append(issues, models.Issue{
			Kind:       models.KindWarningEvent,
			Severity:   models.SeverityMedium,
			Resource:   eventResource(ev),
			Reason:     ev.Reason,
			Message:    ev.Message,
			DetectedAt: now,
		})
	}
	return issues
}

// RecentEvents returns at most n events, oldest first, ending with the newest.
func RecentEvents(events []corev1.Event, n int) []corev1.Event {
	sorted := make([]corev1.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(a, b int) bool {
		return EventTime(sorted[a]).Before(EventTime(sorted[b]))
	})
	if len(sorted) > n {
		sorted = sorted[len(sorted)-n:]
	}
	return sorted
}

// EventTime picks the most meaningful timestamp an event carries.
func EventTime(ev corev1.Event) time.Time {
	switch {
	case !ev.LastTimestamp.IsZero():
		return ev.LastTimestamp.Time
	case !ev.EventTime.IsZero():
		return ev.EventTime.Time
	case !ev.FirstTimestamp.IsZero():
		return ev.FirstTimestamp.Time
	default:
		return ev.CreationTimestamp.Time
	}
}

func podResource(pod *corev1.Pod) string {
	if pod.Namespace == "" {
		return pod.Name
	}
	return pod.Namespace + "/" + pod.Name
}

func eventResource(ev corev1.Event) string {
	obj := ev.InvolvedObject
	name := obj.Name
	if obj.Kind != "" {
		name = obj.Kind + "/" + obj.Name
	}
	if obj.Namespace == "" {
		return name
	}
	return obj.Namespace + "/" + name
}

func conditionMessage(cond corev1.NodeCondition, fallback string) string {
	if cond.Message != "" {
		return cond.Message
	}
	return fallback
}
