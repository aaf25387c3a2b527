package migration

import (
	"context"
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/util/wait"

	"dbupdater/pkg/logging"
)

// awaitTerminal reads the task phase up to policy.PollMaxAttempts times,
// pausing policy.PollInterval between reads. It returns the last observed
// phase and the number of reads made.
//
// The error is nil only for TaskSucceeded. A Failed task yields
// ErrTaskFailed, an exhausted bound ErrPollTimeout, and a cancelled context
// the context's error.
func awaitTerminal(ctx context.Context, runner TaskRunner, task Task, policy Policy) (TaskPhase, int, error) {
	var (
		phase    TaskPhase
		attempts int
	)

	backoff := wait.Backoff{
		Duration: policy.PollInterval,
		Factor:   1,
		Steps:    policy.PollMaxAttempts,
	}

	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		attempts++
		p, err := runner.PollOnce(ctx, task)
		if err != nil {
			return false, err
		}
		phase = p
		logging.Debug("Engine", "Task %s phase %s (attempt %d/%d)", task.ID, p, attempts, policy.PollMaxAttempts)
		return p.IsTerminal(), nil
	})

	switch {
	case err == nil && phase == TaskSucceeded:
		return phase, attempts, nil
	case ctx.Err() != nil:
		return phase, attempts, fmt.Errorf("waiting for task %s: %w", task.ID, ctx.Err())
	case err == nil && phase == TaskFailed:
		return phase, attempts, fmt.Errorf("task %s: %w", task.ID, ErrTaskFailed)
	case err != nil && errors.Is(err, ErrTaskNotFound):
		return phase, attempts, fmt.Errorf("task %s: %w", task.ID, err)
	case err != nil && wait.Interrupted(err):
		return phase, attempts, fmt.Errorf("task %s still %s after %d attempts: %w", task.ID, phase, attempts, ErrPollTimeout)
	case err != nil:
		return phase, attempts, fmt.Errorf("reading task %s: %w", task.ID, err)
	default:
		return phase, attempts, fmt.Errorf("task %s ended in unexpected phase %q", task.ID, phase)
	}
}
