package cluster

import (
	"context"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"
)

// DefaultQueryTimeout bounds every single call to the API server.
const DefaultQueryTimeout = 30 * time.Second

// Collector is the read-only view of a cluster consumed by the detector and
// the investigation steps. An empty namespace means all namespaces.
// Every method returns a *QueryError on failure.
type Collector interface {
	Pods(ctx context.Context, namespace string) ([]corev1.Pod, error)
	Nodes(ctx context.Context) ([]corev1.Node, error)
	Events(ctx context.Context, namespace string) ([]corev1.Event, error)
	Namespaces(ctx context.Context) ([]corev1.Namespace, error)
	ServerVersion(ctx context.Context) (string, error)
	Deployments(ctx context.Context, namespace string) ([]appsv1.Deployment, error)
	Services(ctx context.Context, namespace string) ([]corev1.Service, error)
	NetworkPolicies(ctx context.Context, namespace string) ([]networkingv1.NetworkPolicy, error)
	Ingresses(ctx context.Context, namespace string) ([]networkingv1.Ingress, error)
	NodeMetrics(ctx context.Context) ([]metricsv1beta1.NodeMetrics, error)
}

// KubeCollector implements Collector on top of client-go.
type KubeCollector struct {
	client  kubernetes.Interface
	metrics metricsclientset.Interface // nil when metrics-server is not wired
	timeout time.Duration
}

// NewKubeCollector creates a collector. metricsClient may be nil.
func NewKubeCollector(client kubernetes.Interface, metricsClient metricsclientset.Interface, timeout time.Duration) *KubeCollector {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &KubeCollector{
		client:  client,
		metrics: metricsClient,
		timeout: timeout,
	}
}

// Client exposes the underlying clientset (used for identity resolution).
func (k *KubeCollector) Client() kubernetes.Interface {
	return k.client
}

func (k *KubeCollector) Pods(ctx context.Context, namespace string) ([]corev1.Pod, error) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	list, err := k.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify(ctx, "pods", err)
	}
	return list.Items, nil
}

func (k *KubeCollector) Nodes(ctx context.Context) ([]corev1.Node, error) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	list, err := k.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify(ctx, "nodes", err)
	}
	return list.Items, nil
}

func (k *KubeCollector) Events(ctx context.Context, namespace string) ([]corev1.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	list, err := k.client.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify(ctx, "events", err)
	}
	return list.Items, nil
}

func (k *KubeCollector) Namespaces(ctx context.Context) ([]corev1.Namespace, error) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	list, err := k.client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify(ctx, "namespaces", err)
	}
	return list.Items, nil
}

// ServerVersion has no context-aware client-go call, so the wait is bounded
// here instead.
func (k *KubeCollector) ServerVersion(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	type result struct {
		version string
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		info, err := k.client.Discovery().ServerVersion()
		if err != nil {
			ch <- result{err: err}
			return
		}
		ch <- result{version: info.GitVersion}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return "", classify(ctx, "version", r.err)
		}
		return r.version, nil
	case <-ctx.Done():
		return "", classify(ctx, "version", ctx.Err())
	}
}

func (k *KubeCollector) Deployments(ctx context.Context, namespace string) ([]appsv1.Deployment, error) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	list, err := k.client.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify(ctx, "deployments", err)
	}
	return list.Items, nil
}

func (k *KubeCollector) Services(ctx context.Context, namespace string) ([]corev1.Service, error) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	list, err := k.client.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify(ctx, "services", err)
	}
	return list.Items, nil
}

func (k *KubeCollector) NetworkPolicies(ctx context.Context, namespace string) ([]networkingv1.NetworkPolicy, error) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	list, err := k.client.NetworkingV1().NetworkPolicies(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify(ctx, "networkpolicies", err)
	}
	return list.Items, nil
}

func (k *KubeCollector) Ingresses(ctx context.Context, namespace string) ([]networkingv1.Ingress, error) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	list, err := k.client.NetworkingV1().Ingresses(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify(ctx, "ingresses", err)
	}
	return list.Items, nil
}

func (k *KubeCollector) NodeMetrics(ctx context.Context) ([]metricsv1beta1.NodeMetrics, error) {
	if k.metrics == nil {
		return nil, &QueryError{Resource: "nodemetrics", Kind: KindUnsupported, Err: fmt.Errorf("metrics client not configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	list, err := k.metrics.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify(ctx, "nodemetrics", err)
	}
	return list.Items, nil
}
