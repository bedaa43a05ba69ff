package cluster

import (
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Object builders shared by tests and the Static collector.

// RunningPod returns a running pod with one ready container.
func RunningPod(namespace, name string) corev1.Pod {
	return corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{{
				Name:  "app",
				Ready: true,
				State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{}},
			}},
		},
	}
}

// WaitingPod returns a running-phase pod whose container waits with reason.
func WaitingPod(namespace, name, reason string, restarts int32) corev1.Pod {
	pod := RunningPod(namespace, name)
	pod.Status.ContainerStatuses[0].Ready = false
	pod.Status.ContainerStatuses[0].RestartCount = restarts
	pod.Status.ContainerStatuses[0].State = corev1.ContainerState{
		Waiting: &corev1.ContainerStateWaiting{Reason: reason},
	}
	return pod
}

// PendingPod returns a pod in Pending created at the given time.
func PendingPod(namespace, name string, created time.Time) corev1.Pod {
	return corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, CreationTimestamp: metav1.NewTime(created)},
		Status:     corev1.PodStatus{Phase: corev1.PodPending},
	}
}

// FailedPod returns a pod in Failed phase.
func FailedPod(namespace, name string) corev1.Pod {
	return corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Status:     corev1.PodStatus{Phase: corev1.PodFailed, Reason: "Error"},
	}
}

// ReadyNode returns a node whose Ready condition is True.
func ReadyNode(name string) corev1.Node {
	return NodeWithConditions(name, corev1.NodeCondition{Type: corev1.NodeReady, Status: corev1.ConditionTrue})
}

// NotReadyNode returns a node whose Ready condition is False.
func NotReadyNode(name string) corev1.Node {
	return NodeWithConditions(name, corev1.NodeCondition{Type: corev1.NodeReady, Status: corev1.ConditionFalse, Message: "kubelet stopped posting node status"})
}

// NodeWithConditions returns a node carrying exactly the given conditions.
func NodeWithConditions(name string, conds ...corev1.NodeCondition) corev1.Node {
	return corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status:     corev1.NodeStatus{Conditions: conds},
	}
}

// WarningEvent returns a Warning event about a pod last seen at ts.
func WarningEvent(namespace, pod, reason, message string, ts time.Time) corev1.Event {
	return corev1.Event{
		ObjectMeta:     metav1.ObjectMeta{Name: pod + "." + reason, Namespace: namespace},
		InvolvedObject: corev1.ObjectReference{Kind: "Pod", Namespace: namespace, Name: pod},
		Type:           corev1.EventTypeWarning,
		Reason:         reason,
		Message:        message,
		LastTimestamp:  metav1.NewTime(ts),
		Count:          1,
	}
}
