package cluster

import (
	"context"
	"sync"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
)

// Static is an in-memory Collector for tests and dry runs.
type Static struct {
	// Fixture data
	PodList             []corev1.Pod
	NodeList            []corev1.Node
	EventList           []corev1.Event
	NamespaceList       []corev1.Namespace
	Version             string
	DeploymentList      []appsv1.Deployment
	ServiceList         []corev1.Service
	NetworkPolicyList   []networkingv1.NetworkPolicy
	IngressList         []networkingv1.Ingress
	NodeMetricsList     []metricsv1beta1.NodeMetrics
	NodeMetricsDisabled bool

	// Error injection, keyed by resource name ("pods", "nodes", ...)
	Errors map[string]error

	mu    sync.Mutex
	calls map[string]int
}

// Calls returns how many times a resource was queried.
func (s *Static) Calls(resource string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[resource]
}

// SetError injects (or clears, with nil) a failure for a resource.
func (s *Static) SetError(resource string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Errors == nil {
		s.Errors = make(map[string]error)
	}
	s.Errors[resource] = err
}

func (s *Static) record(resource string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[resource]++

	if err := s.Errors[resource]; err != nil {
		if _, ok := err.(*QueryError); ok {
			return err
		}
		return &QueryError{Resource: resource, Kind: KindUnavailable, Err: err}
	}
	return nil
}

func (s *Static) Pods(ctx context.Context, namespace string) ([]corev1.Pod, error) {
	if err := s.record("pods"); err != nil {
		return nil, err
	}
	if namespace == "" {
		return s.PodList, nil
	}
	var out []corev1.Pod
	for _, p := range s.PodList {
		if p.Namespace == namespace {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Static) Nodes(ctx context.Context) ([]corev1.Node, error) {
	if err := s.record("nodes"); err != nil {
		return nil, err
	}
	return s.NodeList, nil
}

func (s *Static) Events(ctx context.Context, namespace string) ([]corev1.Event, error) {
	if err := s.record("events"); err != nil {
		return nil, err
	}
	return s.EventList, nil
}

func (s *Static) Namespaces(ctx context.Context) ([]corev1.Namespace, error) {
	if err := s.record("namespaces"); err != nil {
		return nil, err
	}
	return s.NamespaceList, nil
}

func (s *Static) ServerVersion(ctx context.Context) (string, error) {
	if err := s.record("version"); err != nil {
		return "", err
	}
	return s.Version, nil
}

func (s *Static) Deployments(ctx context.Context, namespace string) ([]appsv1.Deployment, error) {
	if err := s.record("deployments"); err != nil {
		return nil, err
	}
	return s.DeploymentList, nil
}

func (s *Static) Services(ctx context.Context, namespace string) ([]corev1.Service, error) {
	if err := s.record("services"); err != nil {
		return nil, err
	}
	return s.ServiceList, nil
}

func (s *Static) NetworkPolicies(ctx context.Context, namespace string) ([]networkingv1.NetworkPolicy, error) {
	if err := s.record("networkpolicies"); err != nil {
		return nil, err
	}
	return s.NetworkPolicyList, nil
}

func (s *Static) Ingresses(ctx context.Context, namespace string) ([]networkingv1.Ingress, error) {
	if err := s.record("ingresses"); err != nil {
		return nil, err
	}
	return s.IngressList, nil
}

func (s *Static) NodeMetrics(ctx context.Context) ([]metricsv1beta1.NodeMetrics, error) {
	if err := s.record("nodemetrics"); err != nil {
		return nil, err
	}
	if s.NodeMetricsDisabled {
		return nil, &QueryError{Resource: "nodemetrics", Kind: KindUnsupported, Err: ErrUnsupported}
	}
	return s.NodeMetricsList, nil
}
