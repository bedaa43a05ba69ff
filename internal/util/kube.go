// Wrapper to build the K8s clients.

package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Clients bundles everything built from one rest config.
type Clients struct {
	Rest    *rest.Config
	Kube    kubernetes.Interface
	Metrics metricsclientset.Interface
}

// BuildRestConfig builds a Kubernetes rest config.
//
// Priority:
// 1. explicit kubeconfig flag
// 2. $KUBECONFIG
// 3. in-cluster config
// 4. ~/.kube/config
func BuildRestConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		path := expandTilde(kubeconfig)
		cfg, err := clientcmd.BuildConfigFromFlags("", path)
		if err != nil {
			return nil, fmt.Errorf("build config from kubeconfig=%s: %w", path, err)
		}
		return cfg, nil
	}

	if env := os.Getenv("KUBECONFIG"); env != "" {
		cfg, err := clientcmd.BuildConfigFromFlags("", expandTilde(env))
		if err != nil {
			return nil, fmt.Errorf("build config from $KUBECONFIG=%s: %w", env, err)
		}
		return cfg, nil
	}

	cfg, inClusterErr := rest.InClusterConfig()
	if inClusterErr == nil {
		return cfg, nil
	}

	home := expandTilde("~/.kube/config")
	if _, err := os.Stat(home); err != nil {
		return nil, fmt.Errorf("in-cluster config: %w", inClusterErr)
	}
	cfg, err := clientcmd.BuildConfigFromFlags("", home)
	if err != nil {
		return nil, fmt.Errorf("build config from %s: %w", home, err)
	}
	return cfg, nil
}

// BuildClients builds the core and metrics clientsets. The metrics client
// is always built; whether metrics-server answers is discovered per query.
func BuildClients(kubeconfig string) (*Clients, error) {
	cfg, err := BuildRestConfig(kubeconfig)
	if err != nil {
		return nil, err
	}

	kube, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("new clientset: %w", err)
	}
	metrics, err := metricsclientset.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("new metrics clientset: %w", err)
	}
	return &Clients{Rest: cfg, Kube: kube, Metrics: metrics}, nil
}

// expandTilde resolves a leading "~/" against the home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
