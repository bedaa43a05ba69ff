package util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
)

const forwardReadyTimeout = 10 * time.Second

// ForwardTarget names an in-cluster service port, written "namespace/service:port".
type ForwardTarget struct {
	Namespace string
	Service   string
	Port      int
}

func (t ForwardTarget) String() string {
	return fmt.Sprintf("%s/%s:%d", t.Namespace, t.Service, t.Port)
}

// ParseForwardTarget parses "namespace/service:port". The namespace
// defaults to "monitoring".
func ParseForwardTarget(s string) (ForwardTarget, error) {
	t := ForwardTarget{Namespace: "monitoring"}
	svcPart, portStr, ok := strings.Cut(s, ":")
	if !ok {
		return t, fmt.Errorf("service %q: missing port", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return t, fmt.Errorf("service %q: invalid port %q", s, portStr)
	}
	t.Port = port

	if ns, svc, found := strings.Cut(svcPart, "/"); found {
		t.Namespace, t.Service = ns, svc
	} else {
		t.Service = svcPart
	}
	if t.Namespace == "" || t.Service == "" {
		return t, fmt.Errorf("service %q: expected namespace/service:port", s)
	}
	return t, nil
}

// ServiceForward port-forwards a local ephemeral port to one running pod
// behind a service. It lets the resources step reach an in-cluster
// Prometheus without exposing it.
type ServiceForward struct {
	target     ForwardTarget
	clientset  kubernetes.Interface
	restConfig *rest.Config

	mu        sync.Mutex
	stopChan  chan struct{}
	localPort uint16
	pod       string
}

// NewServiceForward prepares a forward; nothing is dialed until Start.
func NewServiceForward(clients *Clients, target ForwardTarget) *ServiceForward {
	return &ServiceForward{
		target:     target,
		clientset:  clients.Kube,
		restConfig: clients.Rest,
	}
}

// Start opens the forward and returns the local base URL, e.g.
// "http://127.0.0.1:53121".
func (sf *ServiceForward) Start(ctx context.Context) (string, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if sf.stopChan != nil {
		return sf.urlLocked(), nil
	}

	pod, err := sf.findPod(ctx)
	if err != nil {
		return "", err
	}

	req := sf.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(sf.target.Namespace).
		Name(pod).
		SubResource("portforward")

	transport, upgrader, err := spdy.RoundTripperFor(sf.restConfig)
	if err != nil {
		return "", fmt.Errorf("create SPDY transport: %w", err)
	}
	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, req.URL())

	stopChan := make(chan struct{})
	readyChan := make(chan struct{})
	ports := []string{fmt.Sprintf("0:%d", sf.target.Port)}
	fw, err := portforward.NewOnAddresses(dialer, []string{"127.0.0.1"}, ports, stopChan, readyChan, io.Discard, io.Discard)
	if err != nil {
		return "", fmt.Errorf("create port-forwarder: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- fw.ForwardPorts()
	}()

	select {
	case <-readyChan:
	case err := <-errChan:
		return "", fmt.Errorf("port-forward %s: %w", sf.target, err)
	case <-time.After(forwardReadyTimeout):
		close(stopChan)
		return "", fmt.Errorf("port-forward %s: timeout waiting for ready", sf.target)
	case <-ctx.Done():
		close(stopChan)
		return "", ctx.Err()
	}

	forwarded, err := fw.GetPorts()
	if err != nil || len(forwarded) == 0 {
		close(stopChan)
		return "", fmt.Errorf("port-forward %s: no local port assigned", sf.target)
	}

	sf.stopChan = stopChan
	sf.localPort = forwarded[0].Local
	sf.pod = pod
	return sf.urlLocked(), nil
}

// Stop closes the forward. Safe to call more than once.
func (sf *ServiceForward) Stop() {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if sf.stopChan != nil {
		close(sf.stopChan)
		sf.stopChan = nil
	}
}

// Pod returns the pod currently forwarded to.
func (sf *ServiceForward) Pod() string {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.pod
}

func (sf *ServiceForward) urlLocked() string {
	return fmt.Sprintf("http://127.0.0.1:%d", sf.localPort)
}

// findPod picks the first running pod selected by the service.
func (sf *ServiceForward) findPod(ctx context.Context) (string, error) {
	svc, err := sf.clientset.CoreV1().Services(sf.target.Namespace).Get(ctx, sf.target.Service, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("get service %s: %w", sf.target, err)
	}
	if len(svc.Spec.Selector) == 0 {
		return "", fmt.Errorf("service %s has no selector", sf.target)
	}

	pods, err := sf.clientset.CoreV1().Pods(sf.target.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: metav1.FormatLabelSelector(&metav1.LabelSelector{MatchLabels: svc.Spec.Selector}),
	})
	if err != nil {
		return "", fmt.Errorf("list pods for %s: %w", sf.target, err)
	}
	for _, pod := range pods.Items {
		if pod.Status.Phase == corev1.PodRunning && pod.DeletionTimestamp == nil {
			return pod.Name, nil
		}
	}
	return "", errors.New("no running pods found for service " + sf.target.String())
}
