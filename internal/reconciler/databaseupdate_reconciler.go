package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/util/retry"

	"dbupdater/internal/events"
	"dbupdater/internal/migration"
	dbupdatev1 "dbupdater/pkg/apis/dbupdate/v1"
	"dbupdater/pkg/logging"
)

// DatabaseUpdateStore reads DatabaseUpdate objects and writes their status.
type DatabaseUpdateStore interface {
	GetDatabaseUpdate(ctx context.Context, name, namespace string) (*dbupdatev1.DatabaseUpdate, error)
	UpdateDatabaseUpdateStatus(ctx context.Context, obj *dbupdatev1.DatabaseUpdate) error
}

// MigrationEngine converges one object per call.
type MigrationEngine interface {
	Reconcile(ctx context.Context, desired migration.DesiredState, prior migration.ObservedStatus, obj migration.ObjectRef) migration.Outcome
	ForgetObject(obj migration.ObjectRef)
}

// EventEmitter records Kubernetes Events for DatabaseUpdate objects.
type EventEmitter interface {
	DatabaseUpdateEvent(ctx context.Context, obj *dbupdatev1.DatabaseUpdate, reason events.EventReason, data events.EventData) error
}

// Condition reasons set on DatabaseUpdate.status.conditions.
const (
	ReasonConverged          = "Converged"
	ReasonJobRunning         = "JobRunning"
	ReasonJobFailed          = "JobFailed"
	ReasonJobTimedOut        = "JobTimedOut"
	ReasonJobCreateFailed    = "JobCreateFailed"
	ReasonDownstreamPending  = "DownstreamPending"
	ReasonReconcileCancelled = "Cancelled"
)

// DatabaseUpdateReconciler reconciles DatabaseUpdate resources.
//
// Each call runs the migration engine once for the object's declared
// version and writes the outcome to the object's status. The committed
// status.currentVersion only ever moves after the migration job succeeded
// and the downstream Deployment was updated.
type DatabaseUpdateReconciler struct {
	store   DatabaseUpdateStore
	engine  MigrationEngine
	events  EventEmitter
	metrics *Metrics

	// deployment names the downstream Deployment in events.
	deployment string

	now func() time.Time
}

// NewDatabaseUpdateReconciler creates a DatabaseUpdate reconciler. emitter
// and metrics may be nil.
func NewDatabaseUpdateReconciler(store DatabaseUpdateStore, engine MigrationEngine, emitter EventEmitter, metrics *Metrics) *DatabaseUpdateReconciler {
	return &DatabaseUpdateReconciler{
		store:   store,
		engine:  engine,
		events:  emitter,
		metrics: metrics,
		now:     time.Now,
	}
}

// WithDeployment sets the downstream Deployment name reported in events.
func (r *DatabaseUpdateReconciler) WithDeployment(name string) *DatabaseUpdateReconciler {
	r.deployment = name
	return r
}

// GetResourceType returns the resource type this reconciler handles.
func (r *DatabaseUpdateReconciler) GetResourceType() ResourceType {
	return ResourceTypeDatabaseUpdate
}

// Forget drops the engine's in-memory state for a deleted object.
func (r *DatabaseUpdateReconciler) Forget(req ReconcileRequest) {
	r.engine.ForgetObject(migration.ObjectRef{Namespace: req.Namespace, Name: req.Name})
}

// Reconcile processes a single DatabaseUpdate reconciliation request.
func (r *DatabaseUpdateReconciler) Reconcile(ctx context.Context, req ReconcileRequest) ReconcileResult {
	logging.Debug("DatabaseUpdateReconciler", "Reconciling DatabaseUpdate %s/%s (trace %s)", req.Namespace, req.Name, req.TraceID)

	obj, err := r.store.GetDatabaseUpdate(ctx, req.Name, req.Namespace)
	if apierrors.IsNotFound(err) {
		logging.Debug("DatabaseUpdateReconciler", "DatabaseUpdate %s/%s is gone", req.Namespace, req.Name)
		r.Forget(req)
		return ReconcileResult{}
	}
	if err != nil {
		return ReconcileResult{Error: fmt.Errorf("failed to get DatabaseUpdate: %w", err), Requeue: true}
	}
	if !obj.DeletionTimestamp.IsZero() {
		logging.Debug("DatabaseUpdateReconciler", "DatabaseUpdate %s/%s is being deleted", req.Namespace, req.Name)
		return ReconcileResult{}
	}

	ref := migration.ObjectRef{Namespace: obj.Namespace, Name: obj.Name, UID: string(obj.UID)}
	desired := migration.DesiredState{Version: obj.Spec.Version}
	prior := migration.ObservedStatus{CurrentVersion: obj.Status.CurrentVersion}

	if migration.NeedsMigration(desired.Version, prior.CurrentVersion) {
		if err := r.markMigrating(ctx, obj, migration.TaskID(ref, desired.Version)); err != nil {
			// Progress reporting only; the migration itself can proceed.
			logging.Warn("DatabaseUpdateReconciler", "Failed to mark %s as migrating: %v", ref, err)
		}
	}

	start := r.now()
	out := r.engine.Reconcile(ctx, desired, prior, ref)
	elapsed := r.now().Sub(start)

	r.metrics.ObserveOutcome(out)
	r.emitEvents(ctx, obj, desired, prior, out, elapsed)

	if out.Err != nil && ctx.Err() != nil {
		// Leave status alone; the manager decides what a cancelled run means.
		return ReconcileResult{Error: out.Err}
	}

	// A conflict re-applies out to the fresh object instead of running the
	// engine again. out only moves currentVersion once downstream succeeded.
	if err := r.commitStatus(ctx, obj, out); err != nil {
		return ReconcileResult{
			Error:   fmt.Errorf("failed to update DatabaseUpdate status: %w", err),
			Requeue: true,
		}
	}

	if out.Converged {
		return ReconcileResult{}
	}
	return ReconcileResult{
		Error:        out.Err,
		Requeue:      true,
		RequeueAfter: out.RetryAfter,
	}
}

// markMigrating records the task name before the potentially long wait,
// leaving currentVersion untouched.
func (r *DatabaseUpdateReconciler) markMigrating(ctx context.Context, obj *dbupdatev1.DatabaseUpdate, taskName string) error {
	if obj.Status.Phase == dbupdatev1.PhaseMigrating && obj.Status.TaskName == taskName {
		return nil
	}

	status := obj.Status.DeepCopy()
	r.setPhase(status, dbupdatev1.PhaseMigrating)
	status.TaskName = taskName
	meta.SetStatusCondition(&status.Conditions, metav1.Condition{
		Type:               dbupdatev1.ConditionMigrating,
		Status:             metav1.ConditionTrue,
		Reason:             ReasonJobRunning,
		Message:            fmt.Sprintf("Migrating to %s with job %s", obj.Spec.Version, taskName),
		ObservedGeneration: obj.Generation,
	})

	updated := obj.DeepCopy()
	updated.Status = *status
	if err := r.store.UpdateDatabaseUpdateStatus(ctx, updated); err != nil {
		r.metrics.ObserveStatusSync(statusSyncResult(err))
		return err
	}
	r.metrics.ObserveStatusSync("success")
	*obj = *updated
	return nil
}

// commitStatus writes the outcome to the object's status, re-reading the
// object on conflict.
func (r *DatabaseUpdateReconciler) commitStatus(ctx context.Context, obj *dbupdatev1.DatabaseUpdate, out migration.Outcome) error {
	current := obj
	first := true

	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		if !first {
			fresh, err := r.store.GetDatabaseUpdate(ctx, obj.Name, obj.Namespace)
			if err != nil {
				return err
			}
			if fresh.UID != obj.UID {
				return fmt.Errorf("DatabaseUpdate %s/%s was recreated", obj.Namespace, obj.Name)
			}
			current = fresh
		}
		first = false

		updated := current.DeepCopy()
		r.applyOutcome(updated, obj.Generation, out)
		if equality.Semantic.DeepEqual(current.Status, updated.Status) {
			return nil
		}
		err := r.store.UpdateDatabaseUpdateStatus(ctx, updated)
		r.metrics.ObserveStatusSync(statusSyncResult(err))
		return err
	})
}

// applyOutcome sets the status fields derived from out on obj.
func (r *DatabaseUpdateReconciler) applyOutcome(obj *dbupdatev1.DatabaseUpdate, generation int64, out migration.Outcome) {
	status := &obj.Status

	if out.Converged {
		status.CurrentVersion = out.Status.CurrentVersion
		r.setPhase(status, dbupdatev1.PhaseConverged)
		status.TaskName = ""
		status.LastError = ""
		status.ObservedGeneration = generation

		meta.SetStatusCondition(&status.Conditions, metav1.Condition{
			Type:               dbupdatev1.ConditionReady,
			Status:             metav1.ConditionTrue,
			Reason:             ReasonConverged,
			Message:            fmt.Sprintf("Database is at version %s", out.Status.CurrentVersion),
			ObservedGeneration: generation,
		})
		meta.SetStatusCondition(&status.Conditions, metav1.Condition{
			Type:               dbupdatev1.ConditionMigrating,
			Status:             metav1.ConditionFalse,
			Reason:             ReasonConverged,
			ObservedGeneration: generation,
		})
		return
	}

	phase, reason := failurePhase(out)
	r.setPhase(status, phase)
	status.TaskName = out.TaskID
	status.ObservedGeneration = generation
	if out.Err != nil {
		status.LastError = SanitizeErrorMessage(out.Err.Error())
	}

	meta.SetStatusCondition(&status.Conditions, metav1.Condition{
		Type:               dbupdatev1.ConditionReady,
		Status:             metav1.ConditionFalse,
		Reason:             reason,
		Message:            status.LastError,
		ObservedGeneration: generation,
	})
	meta.SetStatusCondition(&status.Conditions, metav1.Condition{
		Type:               dbupdatev1.ConditionMigrating,
		Status:             metav1.ConditionTrue,
		Reason:             reason,
		ObservedGeneration: generation,
	})
}

func (r *DatabaseUpdateReconciler) setPhase(status *dbupdatev1.DatabaseUpdateStatus, phase dbupdatev1.DatabaseUpdatePhase) {
	if status.Phase == phase {
		return
	}
	status.Phase = phase
	now := metav1.NewTime(r.now())
	status.LastTransitionTime = &now
}

// failurePhase maps a non-converged outcome to a phase and condition reason.
func failurePhase(out migration.Outcome) (dbupdatev1.DatabaseUpdatePhase, string) {
	switch {
	case out.Stage == migration.StageDownstream:
		return dbupdatev1.PhaseUpdatingDownstream, ReasonDownstreamPending
	case errors.Is(out.Err, migration.ErrTaskFailed):
		return dbupdatev1.PhaseFailed, ReasonJobFailed
	case out.Stage == migration.StageEnsure:
		return dbupdatev1.PhaseFailed, ReasonJobCreateFailed
	case isPollTimeout(out.Err):
		return dbupdatev1.PhaseMigrating, ReasonJobTimedOut
	case errors.Is(out.Err, context.Canceled), errors.Is(out.Err, context.DeadlineExceeded):
		return dbupdatev1.PhaseMigrating, ReasonReconcileCancelled
	default:
		return dbupdatev1.PhaseMigrating, ReasonJobRunning
	}
}

func (r *DatabaseUpdateReconciler) emitEvents(ctx context.Context, obj *dbupdatev1.DatabaseUpdate, desired migration.DesiredState, prior migration.ObservedStatus, out migration.Outcome, elapsed time.Duration) {
	if r.events == nil || out.TaskID == "" {
		return
	}

	data := events.EventData{
		Version:        desired.Version,
		CurrentVersion: prior.CurrentVersion,
		TaskName:       out.TaskID,
		Attempts:       out.PollAttempts,
		Duration:       elapsed.Round(time.Millisecond),
		Deployment:     r.deployment,
	}
	if out.Err != nil {
		data.Error = SanitizeErrorMessage(out.Err.Error())
	}

	var reasons []events.EventReason
	if out.Creation == migration.Created {
		reasons = append(reasons, events.ReasonMigrationStarted)
	}

	switch {
	case out.Converged:
		reasons = append(reasons, events.ReasonMigrationSucceeded, events.ReasonDownstreamUpdated, events.ReasonVersionConverged)
	case out.Stage == migration.StageDownstream:
		reasons = append(reasons, events.ReasonMigrationSucceeded, events.ReasonDownstreamUpdateFailed)
	case out.Stage == migration.StageEnsure, errors.Is(out.Err, migration.ErrTaskFailed):
		reasons = append(reasons, events.ReasonMigrationFailed)
	case isPollTimeout(out.Err):
		reasons = append(reasons, events.ReasonMigrationTimedOut)
	}

	for _, reason := range reasons {
		if err := r.events.DatabaseUpdateEvent(ctx, obj, reason, data); err != nil {
			logging.Warn("DatabaseUpdateReconciler", "Failed to record %s event for %s/%s: %v", reason, obj.Namespace, obj.Name, err)
		}
	}
}

func isPollTimeout(err error) bool {
	return errors.Is(err, migration.ErrPollTimeout)
}

func statusSyncResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case apierrors.IsConflict(err):
		return "conflict"
	default:
		return "error"
	}
}
