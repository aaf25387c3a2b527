package migration

import (
	"fmt"
	"time"
)

// ObjectRef identifies the declared object a reconciliation acts on.
type ObjectRef struct {
	Namespace string
	Name      string

	// UID is optional. When set, created tasks are owned by the object.
	UID string
}

// String returns namespace/name.
func (o ObjectRef) String() string {
	if o.Namespace == "" {
		return o.Name
	}
	return o.Namespace + "/" + o.Name
}

// DesiredState is the version declared by the user.
type DesiredState struct {
	Version string
}

// ObservedStatus is the last status committed by the engine.
// An empty CurrentVersion means the object was never migrated.
type ObservedStatus struct {
	CurrentVersion string `json:"currentVersion"`
}

// AsMap returns the status as the mapping merged into the persisted object.
func (s ObservedStatus) AsMap() map[string]string {
	return map[string]string{"currentVersion": s.CurrentVersion}
}

// TaskPhase is the phase of a migration task as reported by the task substrate.
type TaskPhase string

const (
	TaskPending   TaskPhase = "Pending"
	TaskRunning   TaskPhase = "Running"
	TaskSucceeded TaskPhase = "Succeeded"
	TaskFailed    TaskPhase = "Failed"
)

// IsTerminal reports whether no further transition can occur from p.
func (p TaskPhase) IsTerminal() bool {
	return p == TaskSucceeded || p == TaskFailed
}

// Task is one migration attempt for an (object, target version) pair.
type Task struct {
	ID            string
	TargetVersion string
	Object        ObjectRef
}

// CreateResult describes how a task came to exist for a reconciliation.
type CreateResult string

const (
	// Created means EnsureTask created the task.
	Created CreateResult = "Created"

	// AlreadyExists means EnsureTask found a task with the same id.
	AlreadyExists CreateResult = "AlreadyExists"

	// Resumed means the engine already ensured the task in an earlier
	// reconciliation and went straight to polling.
	Resumed CreateResult = "Resumed"
)

// Stage names the step of a reconciliation an Outcome stopped at.
type Stage string

const (
	StageNone       Stage = ""
	StageEnsure     Stage = "EnsureTask"
	StageAwait      Stage = "AwaitTask"
	StageDownstream Stage = "UpdateDownstream"
)

// Policy bounds the wait for a task and the delay before a retry.
type Policy struct {
	// PollInterval is the pause between two status reads of a task.
	PollInterval time.Duration

	// PollMaxAttempts is the number of status reads before giving up.
	PollMaxAttempts int

	// RetryDelay is how long the caller should wait before reconciling
	// again after a retryable failure.
	RetryDelay time.Duration
}

const (
	DefaultPollInterval    = 5 * time.Second
	DefaultPollMaxAttempts = 36
	DefaultRetryDelay      = 30 * time.Second
)

// DefaultPolicy returns a 5s x 36 poll bound and a 30s retry delay.
func DefaultPolicy() Policy {
	return Policy{
		PollInterval:    DefaultPollInterval,
		PollMaxAttempts: DefaultPollMaxAttempts,
		RetryDelay:      DefaultRetryDelay,
	}
}

// MaxWait is the worst-case time spent waiting for a task.
func (p Policy) MaxWait() time.Duration {
	if p.PollMaxAttempts <= 1 {
		return 0
	}
	return time.Duration(p.PollMaxAttempts-1) * p.PollInterval
}

// Validate checks that the policy describes a bounded wait.
func (p Policy) Validate() error {
	if p.PollMaxAttempts < 1 {
		return fmt.Errorf("poll max attempts must be at least 1, got %d", p.PollMaxAttempts)
	}
	if p.PollInterval < 0 {
		return fmt.Errorf("poll interval must not be negative, got %s", p.PollInterval)
	}
	if p.RetryDelay <= 0 {
		return fmt.Errorf("retry delay must be positive, got %s", p.RetryDelay)
	}
	return nil
}

// withDefaults fills zero fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.PollInterval == 0 {
		p.PollInterval = d.PollInterval
	}
	if p.PollMaxAttempts == 0 {
		p.PollMaxAttempts = d.PollMaxAttempts
	}
	if p.RetryDelay == 0 {
		p.RetryDelay = d.RetryDelay
	}
	return p
}
