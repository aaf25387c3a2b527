// Package migration implements the database version reconciliation engine.
//
// # Overview
//
// The Engine is the body of a level-triggered control loop. Given the
// desired version declared on a DatabaseUpdate and the last committed
// status, it decides whether a migration is needed, ensures exactly one
// migration task exists for the (object, version) pair, waits a bounded
// amount of time for the task to reach a terminal phase, propagates the new
// version to the downstream workload, and only then reports the new status.
//
// # Collaborators
//
// The engine never talks to Kubernetes itself. It is constructed with:
//
//   - TaskRunner: create-if-absent and single-shot status reads for a task
//   - DownstreamUpdater: idempotent write of the version into the workload
//
// Concrete implementations live in internal/jobs (batch/v1 Jobs) and
// internal/downstream (apps/v1 Deployments). Tests use in-memory fakes.
//
// # State Machine
//
// Per object and desired version:
//
//	NotStarted -> TaskPending -> TaskRunning -> TaskSucceeded -> Converged
//	                  ^               |
//	                  +-- TaskFailed / Timeout (retryable, no recreation)
//
// Converged is terminal for a version. A new desired version starts again
// at NotStarted with a different task id.
//
// # Outcomes
//
// Reconcile returns an Outcome instead of an error. Every failure is
// retryable: the caller requeues after Outcome.RetryAfter and re-runs the
// reconciliation from the then-current status. The status carried by a
// failed Outcome is always the prior status, so a caller that merges it can
// never commit a version whose migration or propagation did not finish.
package migration
