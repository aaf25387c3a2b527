package client

import (
	"context"
	"fmt"

	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	dbupdatev1 "dbupdater/pkg/apis/dbupdate/v1"
)

// Client is the Kubernetes access used by the operator and the CLI.
type Client interface {
	client.Client

	GetDatabaseUpdate(ctx context.Context, name, namespace string) (*dbupdatev1.DatabaseUpdate, error)
	ListDatabaseUpdates(ctx context.Context, namespace string) ([]dbupdatev1.DatabaseUpdate, error)
	UpdateDatabaseUpdateStatus(ctx context.Context, obj *dbupdatev1.DatabaseUpdate) error

	// CreateEvent records a Kubernetes Event against obj.
	CreateEvent(ctx context.Context, obj client.Object, reason, message, eventType string) error
}

// NewClient detects the Kubernetes configuration and returns a client for it.
func NewClient() (Client, *rest.Config, error) {
	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get Kubernetes config: %w", err)
	}

	c, err := NewKubernetesClient(restConfig)
	if err != nil {
		return nil, nil, err
	}
	return c, restConfig, nil
}
