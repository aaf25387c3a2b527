package client

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/client"

	dbupdatev1 "dbupdater/pkg/apis/dbupdate/v1"
)

// EventSource is the component name recorded in emitted Events.
const EventSource = "dbupdater"

// kubernetesClient implements Client using controller-runtime.
type kubernetesClient struct {
	client.Client
	scheme *runtime.Scheme
}

// NewScheme returns a scheme with the standard Kubernetes types and the
// DatabaseUpdate CRD registered.
func NewScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(dbupdatev1.AddToScheme(scheme))
	return scheme
}

// NewKubernetesClient creates a client for config and checks that the
// DatabaseUpdate CRD is installed.
func NewKubernetesClient(config *rest.Config) (Client, error) {
	scheme := NewScheme()

	k8sClient, err := client.New(config, client.Options{
		Scheme: scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	c := &kubernetesClient{
		Client: k8sClient,
		scheme: scheme,
	}

	if err := c.validateCRD(context.Background()); err != nil {
		return nil, fmt.Errorf("CRD validation failed: %w", err)
	}

	return c, nil
}

// NewFromClient wraps an existing controller-runtime client.
func NewFromClient(c client.Client) Client {
	return &kubernetesClient{
		Client: c,
		scheme: c.Scheme(),
	}
}

// GetDatabaseUpdate retrieves a specific DatabaseUpdate.
func (k *kubernetesClient) GetDatabaseUpdate(ctx context.Context, name, namespace string) (*dbupdatev1.DatabaseUpdate, error) {
	obj := &dbupdatev1.DatabaseUpdate{}
	key := client.ObjectKey{Name: name, Namespace: namespace}

	if err := k.Get(ctx, key, obj); err != nil {
		return nil, err
	}

	return obj, nil
}

// ListDatabaseUpdates lists DatabaseUpdates in namespace, or in all
// namespaces when namespace is empty.
func (k *kubernetesClient) ListDatabaseUpdates(ctx context.Context, namespace string) ([]dbupdatev1.DatabaseUpdate, error) {
	list := &dbupdatev1.DatabaseUpdateList{}
	listOptions := &client.ListOptions{
		Namespace: namespace,
	}

	if err := k.List(ctx, list, listOptions); err != nil {
		return nil, err
	}

	return list.Items, nil
}

// UpdateDatabaseUpdateStatus writes the status subresource. The object's
// resourceVersion is sent along, so a concurrent write yields a conflict.
func (k *kubernetesClient) UpdateDatabaseUpdateStatus(ctx context.Context, obj *dbupdatev1.DatabaseUpdate) error {
	return k.Status().Update(ctx, obj)
}

// Scheme returns the runtime scheme used by this client.
func (k *kubernetesClient) Scheme() *runtime.Scheme {
	return k.scheme
}

// validateCRD performs a minimal list to check that the API server serves
// DatabaseUpdates.
func (k *kubernetesClient) validateCRD(ctx context.Context) error {
	list := &dbupdatev1.DatabaseUpdateList{}
	if err := k.List(ctx, list, client.Limit(1)); err != nil {
		if meta.IsNoMatchError(err) {
			return fmt.Errorf("%s CRD is not installed: %w", dbupdatev1.Kind, err)
		}
		return fmt.Errorf("%s CRD not available: %w", dbupdatev1.Kind, err)
	}
	return nil
}

// CreateEvent creates a Kubernetes Event for the given object.
func (k *kubernetesClient) CreateEvent(ctx context.Context, obj client.Object, reason, message, eventType string) error {
	gvk, err := k.GroupVersionKindFor(obj)
	if err != nil {
		return fmt.Errorf("failed to get GroupVersionKind for object: %w", err)
	}

	now := metav1.NewTime(time.Now())
	event := &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: obj.GetName() + "-",
			Namespace:    obj.GetNamespace(),
		},
		InvolvedObject: corev1.ObjectReference{
			APIVersion:      gvk.GroupVersion().String(),
			Kind:            gvk.Kind,
			Name:            obj.GetName(),
			Namespace:       obj.GetNamespace(),
			UID:             obj.GetUID(),
			ResourceVersion: obj.GetResourceVersion(),
		},
		Reason:         reason,
		Message:        message,
		Type:           eventType,
		Source:         corev1.EventSource{Component: EventSource},
		FirstTimestamp: now,
		LastTimestamp:  now,
		Count:          1,
	}

	if err := k.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create Kubernetes Event: %w", err)
	}

	return nil
}
