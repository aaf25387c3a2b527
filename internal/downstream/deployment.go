// Package downstream propagates a migrated database version to the workload
// that consumes the database.
package downstream

import (
	"context"
	"errors"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"dbupdater/internal/migration"
	"dbupdater/pkg/logging"
)

const (
	// DefaultEnvVar is the environment variable that receives the version.
	DefaultEnvVar = "DB_VERSION"

	// AnnotationVersion is set on the pod template so that a version change
	// rolls the Deployment even when the env var is managed elsewhere.
	AnnotationVersion = "dbupdater.io/db-version"
)

// Target names the Deployment to update.
type Target struct {
	Name      string
	Namespace string

	// Container restricts the update to one container. Empty means all.
	Container string

	// EnvVar defaults to DefaultEnvVar.
	EnvVar string
}

// DeploymentUpdater implements migration.DownstreamUpdater for a Deployment.
type DeploymentUpdater struct {
	client client.Client
	target Target
}

var _ migration.DownstreamUpdater = (*DeploymentUpdater)(nil)

// NewDeploymentUpdater returns an updater for target.
func NewDeploymentUpdater(c client.Client, target Target) (*DeploymentUpdater, error) {
	if target.Name == "" {
		return nil, errors.New("downstream deployment name is required")
	}
	if target.EnvVar == "" {
		target.EnvVar = DefaultEnvVar
	}
	return &DeploymentUpdater{client: c, target: target}, nil
}

// UpdateVersion sets the version on the target Deployment. Nothing is
// written when the Deployment already carries it.
func (u *DeploymentUpdater) UpdateVersion(ctx context.Context, version string) error {
	key := client.ObjectKey{Name: u.target.Name, Namespace: u.target.Namespace}

	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		deployment := &appsv1.Deployment{}
		if err := u.client.Get(ctx, key, deployment); err != nil {
			return fmt.Errorf("failed to get deployment %s: %w", key, err)
		}

		changed, err := u.apply(deployment, version)
		if err != nil {
			return err
		}
		if !changed {
			logging.Debug("Downstream", "Deployment %s already at version %q", key, version)
			return nil
		}

		if err := u.client.Update(ctx, deployment); err != nil {
			return err
		}
		logging.Info("Downstream", "Updated deployment %s to version %q", key, version)
		return nil
	})
}

// apply mutates deployment in place and reports whether anything changed.
func (u *DeploymentUpdater) apply(deployment *appsv1.Deployment, version string) (bool, error) {
	template := &deployment.Spec.Template
	changed := false
	matched := false

	for i := range template.Spec.Containers {
		c := &template.Spec.Containers[i]
		if u.target.Container != "" && c.Name != u.target.Container {
			continue
		}
		matched = true
		if setEnv(c, u.target.EnvVar, version) {
			changed = true
		}
	}
	if !matched {
		if u.target.Container != "" {
			return false, fmt.Errorf("deployment %s/%s has no container %q", deployment.Namespace, deployment.Name, u.target.Container)
		}
		return false, fmt.Errorf("deployment %s/%s has no containers", deployment.Namespace, deployment.Name)
	}

	if template.Annotations[AnnotationVersion] != version {
		if template.Annotations == nil {
			template.Annotations = make(map[string]string)
		}
		template.Annotations[AnnotationVersion] = version
		changed = true
	}

	return changed, nil
}

func setEnv(c *corev1.Container, name, value string) bool {
	for i := range c.Env {
		if c.Env[i].Name != name {
			continue
		}
		if c.Env[i].Value == value && c.Env[i].ValueFrom == nil {
			return false
		}
		c.Env[i].Value = value
		c.Env[i].ValueFrom = nil
		return true
	}
	c.Env = append(c.Env, corev1.EnvVar{Name: name, Value: value})
	return true
}
