package cluster

import (
	"context"
	"fmt"
	"os"
	"os/user"

	authenticationv1 "k8s.io/api/authentication/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// Identity records who started a monitor or an investigation.
type Identity struct {
	KubeContext string `json:"kube_context,omitempty" yaml:"kube_context,omitempty"`
	KubeUser    string `json:"kube_user,omitempty" yaml:"kube_user,omitempty"`
	OSUser      string `json:"os_user" yaml:"os_user"`
	Machine     string `json:"machine" yaml:"machine"`
	Source      string `json:"source" yaml:"source"` // ssr, kubeconfig or os
}

// String is the short form printed in report headers.
func (id Identity) String() string {
	who := id.KubeUser
	if who == "" {
		who = id.OSUser
	}
	if id.KubeContext != "" {
		return fmt.Sprintf("%s@%s (%s, context %s)", who, id.Machine, id.Source, id.KubeContext)
	}
	return fmt.Sprintf("%s@%s (%s)", who, id.Machine, id.Source)
}

// ResolveIdentity asks the API server first (SelfSubjectReview), falls back
// to the kubeconfig current context, then to the OS user alone. client may be nil.
func ResolveIdentity(ctx context.Context, client kubernetes.Interface, kubeconfigPath string) Identity {
	id := Identity{Source: "os"}
	id.OSUser, id.Machine = osIdentity()

	ctxName, cfgUser := kubeconfigIdentity(kubeconfigPath)

	if client != nil {
		review, err := client.AuthenticationV1().SelfSubjectReviews().Create(ctx, &authenticationv1.SelfSubjectReview{}, metav1.CreateOptions{})
		if err == nil && review.Status.UserInfo.Username != "" {
			id.KubeUser = review.Status.UserInfo.Username
			id.KubeContext = ctxName
			id.Source = "ssr"
			return id
		}
	}

	if ctxName != "" || cfgUser != "" {
		id.KubeContext = ctxName
		id.KubeUser = cfgUser
		id.Source = "kubeconfig"
	}
	return id
}

func kubeconfigIdentity(path string) (contextName, userName string) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if path != "" {
		rules.ExplicitPath = path
	}
	raw, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).RawConfig()
	if err != nil {
		return "", ""
	}

	contextName = raw.CurrentContext
	if c, ok := raw.Contexts[contextName]; ok {
		userName = c.AuthInfo
	}
	return contextName, userName
}

func osIdentity() (string, string) {
	var name string
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	host, _ := os.Hostname()
	return name, host
}
