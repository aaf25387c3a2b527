package jobs

import (
	"context"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"dbupdater/internal/migration"
	"dbupdater/pkg/logging"
)

// Runner implements migration.TaskRunner on top of batch/v1 Jobs.
type Runner struct {
	client client.Client
	config JobConfig
}

var _ migration.TaskRunner = (*Runner)(nil)

// NewRunner creates a Runner that creates Jobs through c.
func NewRunner(c client.Client, cfg JobConfig) *Runner {
	return &Runner{
		client: c,
		config: cfg.withDefaults(),
	}
}

// EnsureTask creates the Job for task unless one with the same name exists.
func (r *Runner) EnsureTask(ctx context.Context, task migration.Task) (migration.CreateResult, error) {
	job := BuildJob(task, r.config)

	if err := r.client.Create(ctx, job); err != nil {
		if apierrors.IsAlreadyExists(err) {
			logging.Debug("JobRunner", "Job %s/%s already exists", job.Namespace, job.Name)
			return migration.AlreadyExists, nil
		}
		return "", fmt.Errorf("failed to create job %s/%s: %w", job.Namespace, job.Name, err)
	}

	logging.Info("JobRunner", "Created job %s/%s for version %q", job.Namespace, job.Name, task.TargetVersion)
	return migration.Created, nil
}

// PollOnce reads the Job for task once and maps its state to a phase.
func (r *Runner) PollOnce(ctx context.Context, task migration.Task) (migration.TaskPhase, error) {
	job := &batchv1.Job{}
	key := client.ObjectKey{Name: task.ID, Namespace: task.Object.Namespace}

	if err := r.client.Get(ctx, key, job); err != nil {
		if apierrors.IsNotFound(err) {
			return "", fmt.Errorf("job %s: %w", key, migration.ErrTaskNotFound)
		}
		return "", fmt.Errorf("failed to get job %s: %w", key, err)
	}

	return Phase(job), nil
}
