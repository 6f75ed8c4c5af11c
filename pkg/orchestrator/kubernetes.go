// Package orchestrator implements scaling.Orchestrator against Kubernetes
// and, for local runs, an in-memory dry-run target.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	autoscalingv1 "k8s.io/api/autoscaling/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// Workload kinds with a scale subresource.
const (
	KindDeployment  = "Deployment"
	KindStatefulSet = "StatefulSet"
)

// Kubernetes reads and writes replicas through the scale subresource of a
// Deployment or StatefulSet. Every read goes to the API server. The scale
// object of the last read is kept for the next write only, so that write
// carries the read's resourceVersion.
type Kubernetes struct {
	client    kubernetes.Interface
	kind      string
	namespace string
	name      string
	logger    *slog.Logger

	mu       sync.Mutex
	lastRead *autoscalingv1.Scale
}

// NewKubernetes targets one workload. kind is case-insensitive.
func NewKubernetes(client kubernetes.Interface, kind, namespace, name string, logger *slog.Logger) (*Kubernetes, error) {
	if client == nil {
		return nil, fmt.Errorf("kubernetes client is required")
	}
	if name == "" {
		return nil, fmt.Errorf("workload name is required")
	}
	if namespace == "" {
		namespace = "default"
	}
	switch strings.ToLower(kind) {
	case "", "deployment":
		kind = KindDeployment
	case "statefulset":
		kind = KindStatefulSet
	default:
		return nil, fmt.Errorf("unsupported workload kind %q (must be Deployment or StatefulSet)", kind)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Kubernetes{
		client:    client,
		kind:      kind,
		namespace: namespace,
		name:      name,
		logger:    logger.With("kind", kind, "namespace", namespace, "name", name),
	}, nil
}

// Target returns "Kind/namespace/name".
func (k *Kubernetes) Target() string {
	return fmt.Sprintf("%s/%s/%s", k.kind, k.namespace, k.name)
}

func (k *Kubernetes) getScale(ctx context.Context) (*autoscalingv1.Scale, error) {
	if k.kind == KindStatefulSet {
		return k.client.AppsV1().StatefulSets(k.namespace).GetScale(ctx, k.name, metav1.GetOptions{})
	}
	return k.client.AppsV1().Deployments(k.namespace).GetScale(ctx, k.name, metav1.GetOptions{})
}

func (k *Kubernetes) updateScale(ctx context.Context, scale *autoscalingv1.Scale) error {
	var err error
	if k.kind == KindStatefulSet {
		_, err = k.client.AppsV1().StatefulSets(k.namespace).UpdateScale(ctx, k.name, scale, metav1.UpdateOptions{})
	} else {
		_, err = k.client.AppsV1().Deployments(k.namespace).UpdateScale(ctx, k.name, scale, metav1.UpdateOptions{})
	}
	return err
}

// ReadReplicas returns spec.replicas of the scale subresource.
func (k *Kubernetes) ReadReplicas(ctx context.Context) (int, error) {
	scale, err := k.getScale(ctx)
	if err != nil {
		return 0, fmt.Errorf("get scale %s: %w", k.Target(), err)
	}
	k.mu.Lock()
	k.lastRead = scale.DeepCopy()
	k.mu.Unlock()
	return int(scale.Spec.Replicas), nil
}

// WriteReplicas sets spec.replicas on the scale object of the preceding
// ReadReplicas. The update carries that read's resourceVersion, so a change
// by another actor in between fails with a conflict instead of being
// overwritten. Without a preceding read the current object is fetched first.
func (k *Kubernetes) WriteReplicas(ctx context.Context, replicas int) error {
	k.mu.Lock()
	scale := k.lastRead
	k.lastRead = nil
	k.mu.Unlock()

	if scale == nil {
		var err error
		if scale, err = k.getScale(ctx); err != nil {
			return fmt.Errorf("get scale %s: %w", k.Target(), err)
		}
	}
	from := scale.Spec.Replicas
	scale.Spec.Replicas = int32(replicas)
	if err := k.updateScale(ctx, scale); err != nil {
		return fmt.Errorf("update scale %s: %w", k.Target(), err)
	}
	k.logger.Debug("updated scale", "from", from, "to", replicas, "resource_version", scale.ResourceVersion)
	return nil
}

// NewClientset builds a clientset from kubeconfig when one is found
// (explicit path, $KUBECONFIG, then ~/.kube/config) and from the in-cluster
// service account otherwise.
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	cfg, err := restConfig(kubeconfig)
	if err != nil {
		return nil, err
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return cs, nil
}

func restConfig(kubeconfig string) (*rest.Config, error) {
	path := kubeconfigPath(kubeconfig)
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			cfg, err := clientcmd.BuildConfigFromFlags("", path)
			if err != nil {
				return nil, fmt.Errorf("build config from kubeconfig %s: %w", path, err)
			}
			return cfg, nil
		} else if kubeconfig != "" {
			return nil, fmt.Errorf("kubeconfig %s: %w", kubeconfig, err)
		}
	}
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("in-cluster config: %w", err)
	}
	return cfg, nil
}

func kubeconfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("KUBECONFIG"); p != "" {
		return p
	}
	if home := homedir.HomeDir(); home != "" {
		return filepath.Join(home, ".kube", "config")
	}
	return ""
}
