package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dbupdater/pkg/logging"
)

// Outcome is the result of one reconciliation.
type Outcome struct {
	// Status is the status to merge into the object. It equals the prior
	// status unless Converged is true after a successful migration.
	Status ObservedStatus

	// Converged is true when Status.CurrentVersion equals the desired version.
	Converged bool

	// RetryAfter is the delay before the caller should reconcile again.
	// Zero when Converged.
	RetryAfter time.Duration

	// Err explains a retryable failure.
	Err error

	// Stage is the step the reconciliation stopped at on failure.
	Stage Stage

	TaskID       string
	Creation     CreateResult
	Phase        TaskPhase
	PollAttempts int
	Change       VersionChange
}

// Retryable reports whether the caller must reconcile again later.
func (o Outcome) Retryable() bool {
	return !o.Converged
}

// Engine drives one convergence attempt per Reconcile call.
type Engine struct {
	runner  TaskRunner
	updater DownstreamUpdater
	policy  atomic.Pointer[Policy]

	// ledger maps ensured task ids to their owner and last known state.
	// An object has at most one entry.
	mu     sync.Mutex
	ledger map[string]ledgerEntry
}

type ledgerEntry struct {
	owner string

	// succeeded is set once the task was observed Succeeded. The task is
	// never polled or recreated after that.
	succeeded bool
}

// NewEngine creates an engine. Zero fields in policy take their defaults.
func NewEngine(runner TaskRunner, updater DownstreamUpdater, policy Policy) (*Engine, error) {
	if runner == nil {
		return nil, errors.New("task runner is required")
	}
	if updater == nil {
		return nil, errors.New("downstream updater is required")
	}

	e := &Engine{
		runner:  runner,
		updater: updater,
		ledger:  make(map[string]ledgerEntry),
	}
	if err := e.SetPolicy(policy); err != nil {
		return nil, err
	}
	return e, nil
}

// Policy returns the current poll and retry policy.
func (e *Engine) Policy() Policy {
	return *e.policy.Load()
}

// SetPolicy replaces the policy used by subsequent reconciliations.
// In-flight reconciliations keep the policy they started with.
func (e *Engine) SetPolicy(policy Policy) error {
	policy = policy.withDefaults()
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid migration policy: %w", err)
	}
	e.policy.Store(&policy)
	return nil
}

// Reconcile converges obj towards desired and returns the next status.
func (e *Engine) Reconcile(ctx context.Context, desired DesiredState, prior ObservedStatus, obj ObjectRef) Outcome {
	current := prior.CurrentVersion

	if !NeedsMigration(desired.Version, current) {
		logging.Debug("Engine", "%s already at desired version %q", obj, current)
		return Outcome{Status: prior, Converged: true, Change: ChangeNone}
	}

	policy := e.Policy()
	task := Task{
		ID:            TaskID(obj, desired.Version),
		TargetVersion: desired.Version,
		Object:        obj,
	}
	out := Outcome{
		Status: prior,
		TaskID: task.ID,
		Change: Direction(desired.Version, current),
	}

	logging.Info("Engine", "Database update required for %s: %q -> %q (%s)", obj, current, desired.Version, out.Change)

	entry, known := e.lookup(task.ID)
	if known && entry.succeeded {
		out.Creation = Resumed
		out.Phase = TaskSucceeded
		logging.Debug("Engine", "Task %s already succeeded, skipping to downstream update", task.ID)
	} else {
		var ok bool
		if out, ok = e.runTask(ctx, task, known, policy, out); !ok {
			return out
		}
	}

	logging.Info("Engine", "Task %s succeeded, updating downstream to %q", task.ID, desired.Version)

	if err := e.updater.UpdateVersion(ctx, desired.Version); err != nil {
		return out.retry(StageDownstream, policy, fmt.Errorf("update downstream to %q: %w", desired.Version, err))
	}

	e.forget(task.ID)
	out.Status = ObservedStatus{CurrentVersion: desired.Version}
	out.Converged = true

	logging.Info("Engine", "Database update complete for %s, currentVersion=%q", obj, desired.Version)
	return out
}

// runTask ensures the task unless it is already known and waits for it to
// succeed. It returns false with a retryable outcome otherwise.
func (e *Engine) runTask(ctx context.Context, task Task, known bool, policy Policy, out Outcome) (Outcome, bool) {
	if known {
		out.Creation = Resumed
		logging.Debug("Engine", "Resuming task %s", task.ID)
	} else {
		res, err := e.runner.EnsureTask(ctx, task)
		if err != nil {
			return out.retry(StageEnsure, policy, fmt.Errorf("ensure task %s: %w", task.ID, err)), false
		}
		out.Creation = res
		e.remember(task.ID, task.Object)
		logging.Info("Engine", "Task %s for %s: %s", task.ID, task.Object, res)
	}

	phase, attempts, err := awaitTerminal(ctx, e.runner, task, policy)
	out.Phase = phase
	out.PollAttempts = attempts
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			e.forget(task.ID)
		}
		return out.retry(StageAwait, policy, err), false
	}
	e.markSucceeded(task.ID)
	return out, true
}

func (o Outcome) retry(stage Stage, policy Policy, err error) Outcome {
	o.Stage = stage
	o.Err = err
	o.RetryAfter = policy.RetryDelay
	logging.Warn("Engine", "Retrying in %s: %v", policy.RetryDelay, err)
	return o
}

func (e *Engine) lookup(id string) (ledgerEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.ledger[id]
	return entry, ok
}

func (e *Engine) known(id string) bool {
	_, ok := e.lookup(id)
	return ok
}

// remember records id for obj and drops entries obj held for other versions.
func (e *Engine) remember(id string, obj ObjectRef) {
	key := obj.String()

	e.mu.Lock()
	defer e.mu.Unlock()
	for other, entry := range e.ledger {
		if entry.owner == key && other != id {
			delete(e.ledger, other)
		}
	}
	e.ledger[id] = ledgerEntry{owner: key}
}

func (e *Engine) markSucceeded(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.ledger[id]; ok {
		entry.succeeded = true
		e.ledger[id] = entry
	}
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.ledger, id)
}

// ForgetObject drops every ledger entry recorded for obj. The host calls it
// when the object is deleted.
func (e *Engine) ForgetObject(obj ObjectRef) {
	key := obj.String()

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, entry := range e.ledger {
		if entry.owner == key {
			delete(e.ledger, id)
		}
	}
}
