package cluster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/version"
	fakediscovery "k8s.io/client-go/discovery/fake"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"
)

func TestKubeCollector_PodsAndNodes(t *testing.T) {
	client := fake.NewSimpleClientset(
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "default"}},
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "db", Namespace: "data"}},
		&corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "node-1"}},
	)
	c := NewKubeCollector(client, nil, 0)

	all, err := c.Pods(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := c.Pods(context.Background(), "data")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "db", scoped[0].Name)

	nodes, err := c.Nodes(context.Background())
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestKubeCollector_ServerVersion(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.Discovery().(*fakediscovery.FakeDiscovery).FakedServerVersion = &version.Info{GitVersion: "v1.30.2"}

	v, err := NewKubeCollector(client, nil, time.Second).ServerVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1.30.2", v)
}

func TestKubeCollector_ListFailureIsUnavailable(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("list", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, assert.AnError
	})

	_, err := NewKubeCollector(client, nil, 0).Pods(context.Background(), "")
	require.Error(t, err)

	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "pods", qe.Resource)
	assert.Equal(t, KindUnavailable, qe.Kind)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestKubeCollector_Timeout(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("list", "nodes", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewTimeoutError("slow", 1)
	})

	_, err := NewKubeCollector(client, nil, 0).Nodes(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestKubeCollector_NodeMetrics(t *testing.T) {
	t.Run("no metrics client", func(t *testing.T) {
		_, err := NewKubeCollector(fake.NewSimpleClientset(), nil, 0).NodeMetrics(context.Background())
		assert.ErrorIs(t, err, ErrUnsupported)
	})

	t.Run("metrics api not served", func(t *testing.T) {
		mc := metricsfake.NewSimpleClientset()
		mc.PrependReactor("list", "nodes", func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, apierrors.NewNotFound(schema.GroupResource{Group: "metrics.k8s.io", Resource: "nodes"}, "")
		})
		_, err := NewKubeCollector(fake.NewSimpleClientset(), mc, 0).NodeMetrics(context.Background())
		assert.ErrorIs(t, err, ErrUnsupported)
	})

	t.Run("served", func(t *testing.T) {
		mc := metricsfake.NewSimpleClientset()
		mc.PrependReactor("list", "nodes", func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, &metricsv1beta1.NodeMetricsList{Items: []metricsv1beta1.NodeMetrics{
				{ObjectMeta: metav1.ObjectMeta{Name: "node-1"}},
			}}, nil
		})
		items, err := NewKubeCollector(fake.NewSimpleClientset(), mc, 0).NodeMetrics(context.Background())
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "node-1", items[0].Name)
	})
}

func TestQueryError_IsMatchesOnlyItsKind(t *testing.T) {
	err := &QueryError{Resource: "pods", Kind: KindTimeout, Err: context.DeadlineExceeded}
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "query pods: timeout")
}

func TestClassify_DeadlineExceeded(t *testing.T) {
	err := classify(context.Background(), "events", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrTimeout)
}
