package cluster

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	authenticationv1 "k8s.io/api/authentication/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

const testKubeconfig = `apiVersion: v1
kind: Config
current-context: ops
contexts:
- context:
    cluster: prod
    user: oncall
  name: ops
clusters:
- cluster:
    server: https://localhost:6443
  name: prod
users:
- name: oncall
  user:
    token: t
`

func writeKubeconfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kubeconfig")
	require.NoError(t, os.WriteFile(path, []byte(testKubeconfig), 0644))
	return path
}

func TestResolveIdentity_SelfSubjectReview(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("create", "selfsubjectreviews", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, &authenticationv1.SelfSubjectReview{
			Status: authenticationv1.SelfSubjectReviewStatus{
				UserInfo: authenticationv1.UserInfo{Username: "system:admin"},
			},
		}, nil
	})

	id := ResolveIdentity(context.Background(), client, writeKubeconfig(t))
	assert.Equal(t, "ssr", id.Source)
	assert.Equal(t, "system:admin", id.KubeUser)
	assert.Equal(t, "ops", id.KubeContext)
}

func TestResolveIdentity_KubeconfigFallback(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("create", "selfsubjectreviews", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, assert.AnError
	})

	id := ResolveIdentity(context.Background(), client, writeKubeconfig(t))
	assert.Equal(t, "kubeconfig", id.Source)
	assert.Equal(t, "oncall", id.KubeUser)
	assert.Equal(t, "ops", id.KubeContext)
	assert.Contains(t, id.String(), "oncall@")
	assert.Contains(t, id.String(), "context ops")
}

func TestResolveIdentity_OSOnly(t *testing.T) {
	id := ResolveIdentity(context.Background(), nil, "/nonexistent/kubeconfig")
	assert.Equal(t, "os", id.Source)
	assert.Empty(t, id.KubeUser)
	assert.NotEmpty(t, id.Machine)
}
