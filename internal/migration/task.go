package migration

import (
	"context"
	"errors"
)

var (
	// ErrTaskNotFound is returned by TaskRunner.PollOnce when the task does
	// not exist, for example after the substrate garbage-collected it.
	ErrTaskNotFound = errors.New("migration task not found")

	// ErrTaskFailed marks an Outcome whose task reached the Failed phase.
	ErrTaskFailed = errors.New("migration task failed")

	// ErrPollTimeout marks an Outcome whose task did not reach a terminal
	// phase within the poll bound.
	ErrPollTimeout = errors.New("migration task did not finish in time")
)

// TaskRunner creates migration tasks and reports their phase.
//
// EnsureTask must be create-if-absent: concurrent calls with the same id
// yield one Created and otherwise AlreadyExists, never a second task and
// never an error for the existing one.
type TaskRunner interface {
	EnsureTask(ctx context.Context, task Task) (CreateResult, error)
	PollOnce(ctx context.Context, task Task) (TaskPhase, error)
}
