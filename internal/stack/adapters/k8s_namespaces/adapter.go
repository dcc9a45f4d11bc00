// Package k8snamespaces manages kubernetes namespaces through client-go.
package k8snamespaces

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/duration"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

// Adapter implements ports.NamespacePort.
type Adapter struct {
	client kubernetes.Interface
	now    func() time.Time
}

// New creates an adapter from a kubeconfig path. An empty path falls back to
// the default loading rules (KUBECONFIG, ~/.kube/config, in-cluster).
func New(kubeconfig string) (*Adapter, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig: %w", err)
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}
	return NewWithClient(client), nil
}

// NewWithClient creates an adapter around an existing clientset.
func NewWithClient(client kubernetes.Interface) *Adapter {
	return &Adapter{client: client, now: time.Now}
}

// ListNamespaces returns every namespace of the cluster.
func (a *Adapter) ListNamespaces(ctx context.Context) ([]domain.Namespace, error) {
	list, err := a.client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing namespaces: %w", err)
	}
	out := make([]domain.Namespace, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, a.toDomain(&list.Items[i]))
	}
	return out, nil
}

// GetNamespace returns a single namespace.
func (a *Adapter) GetNamespace(ctx context.Context, name string) (domain.Namespace, error) {
	ns, err := a.client.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return domain.Namespace{}, domain.NewNotFoundError("namespace", name)
		}
		return domain.Namespace{}, fmt.Errorf("getting namespace %s: %w", name, err)
	}
	return a.toDomain(ns), nil
}

// CreateNamespace creates a namespace.
func (a *Adapter) CreateNamespace(ctx context.Context, name string) error {
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{
		Name:   name,
		Labels: map[string]string{"app.kubernetes.io/managed-by": "chart-stack"},
	}}
	if _, err := a.client.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return &domain.ExistsError{Kind: "namespace", Name: name}
		}
		return fmt.Errorf("creating namespace %s: %w", name, err)
	}
	return nil
}

// DeleteNamespace deletes a namespace.
func (a *Adapter) DeleteNamespace(ctx context.Context, name string) error {
	if err := a.client.CoreV1().Namespaces().Delete(ctx, name, metav1.DeleteOptions{}); err != nil {
		if apierrors.IsNotFound(err) {
			return domain.NewNotFoundError("namespace", name)
		}
		return fmt.Errorf("deleting namespace %s: %w", name, err)
	}
	return nil
}

func (a *Adapter) toDomain(ns *corev1.Namespace) domain.Namespace {
	age := "<unknown>"
	if !ns.CreationTimestamp.IsZero() {
		age = duration.HumanDuration(a.now().Sub(ns.CreationTimestamp.Time))
	}
	return domain.Namespace{
		Name:   ns.Name,
		Status: string(ns.Status.Phase),
		Age:    age,
	}
}
