package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	dbclient "dbupdater/internal/client"
	"dbupdater/internal/events"
	"dbupdater/internal/migration"
	dbupdatev1 "dbupdater/pkg/apis/dbupdate/v1"
)

// stubRunner reports a fixed phase for every task it was asked to ensure.
type stubRunner struct {
	mu      sync.Mutex
	phase   migration.TaskPhase
	ensured map[string]bool
}

func newStubRunner(phase migration.TaskPhase) *stubRunner {
	return &stubRunner{phase: phase, ensured: make(map[string]bool)}
}

func (s *stubRunner) EnsureTask(ctx context.Context, task migration.Task) (migration.CreateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[task.ID] {
		return migration.AlreadyExists, nil
	}
	s.ensured[task.ID] = true
	return migration.Created, nil
}

func (s *stubRunner) PollOnce(ctx context.Context, task migration.Task) (migration.TaskPhase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase, nil
}

func (s *stubRunner) setPhase(p migration.TaskPhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

type recordedEvent struct {
	reason events.EventReason
	data   events.EventData
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEmitter) DatabaseUpdateEvent(ctx context.Context, obj *dbupdatev1.DatabaseUpdate, reason events.EventReason, data events.EventData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{reason: reason, data: data})
	return nil
}

func (r *recordingEmitter) reasons() []events.EventReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventReason, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.reason)
	}
	return out
}

// forgetfulEngine records ForgetObject calls.
type forgetfulEngine struct {
	MigrationEngine
	forgotten []migration.ObjectRef
}

func (f *forgetfulEngine) ForgetObject(obj migration.ObjectRef) {
	f.forgotten = append(f.forgotten, obj)
}

type reconcilerFixture struct {
	client   dbclient.Client
	runner   *stubRunner
	versions []string
	updErr   error
	emitter  *recordingEmitter
	metrics  *Metrics
	rec      *DatabaseUpdateReconciler
}

func newFixture(t *testing.T, phase migration.TaskPhase, funcs *interceptor.Funcs, objs ...client.Object) *reconcilerFixture {
	t.Helper()

	builder := fake.NewClientBuilder().
		WithScheme(dbclient.NewScheme()).
		WithObjects(objs...).
		WithStatusSubresource(&dbupdatev1.DatabaseUpdate{})
	if funcs != nil {
		builder = builder.WithInterceptorFuncs(*funcs)
	}

	f := &reconcilerFixture{
		client:  dbclient.NewFromClient(builder.Build()),
		runner:  newStubRunner(phase),
		emitter: &recordingEmitter{},
		metrics: NewMetrics(prometheus.NewRegistry()),
	}

	updater := migration.DownstreamUpdaterFunc(func(ctx context.Context, version string) error {
		if f.updErr != nil {
			return f.updErr
		}
		f.versions = append(f.versions, version)
		return nil
	})

	engine, err := migration.NewEngine(f.runner, updater, migration.Policy{
		PollInterval:    time.Millisecond,
		PollMaxAttempts: 3,
		RetryDelay:      30 * time.Second,
	})
	require.NoError(t, err)

	f.rec = NewDatabaseUpdateReconciler(f.client, engine, f.emitter, f.metrics).WithDeployment("orders-api")
	return f
}

func (f *reconcilerFixture) reconcile(t *testing.T) ReconcileResult {
	t.Helper()
	return f.rec.Reconcile(context.Background(), ReconcileRequest{
		Type:      ResourceTypeDatabaseUpdate,
		Name:      "orders-db",
		Namespace: "default",
		Attempt:   1,
		TraceID:   "trace-1",
	})
}

func (f *reconcilerFixture) get(t *testing.T) *dbupdatev1.DatabaseUpdate {
	t.Helper()
	obj, err := f.client.GetDatabaseUpdate(context.Background(), "orders-db", "default")
	require.NoError(t, err)
	return obj
}

func newDatabaseUpdate(desired, current string) *dbupdatev1.DatabaseUpdate {
	return &dbupdatev1.DatabaseUpdate{
		ObjectMeta: metav1.ObjectMeta{
			Name:       "orders-db",
			Namespace:  "default",
			UID:        "uid-orders-db",
			Generation: 2,
		},
		Spec:   dbupdatev1.DatabaseUpdateSpec{Version: desired},
		Status: dbupdatev1.DatabaseUpdateStatus{CurrentVersion: current},
	}
}

func TestDatabaseUpdateReconciler_ResourceType(t *testing.T) {
	r := NewDatabaseUpdateReconciler(nil, nil, nil, nil)
	assert.Equal(t, ResourceTypeDatabaseUpdate, r.GetResourceType())
}

func TestDatabaseUpdateReconciler_MigratesAndCommits(t *testing.T) {
	f := newFixture(t, migration.TaskSucceeded, nil, newDatabaseUpdate("1.2.0", "1.1.0"))

	result := f.reconcile(t)
	require.NoError(t, result.Error)
	assert.False(t, result.Requeue)

	obj := f.get(t)
	assert.Equal(t, "1.2.0", obj.Status.CurrentVersion)
	assert.Equal(t, dbupdatev1.PhaseConverged, obj.Status.Phase)
	assert.Empty(t, obj.Status.TaskName)
	assert.Empty(t, obj.Status.LastError)
	assert.Equal(t, int64(2), obj.Status.ObservedGeneration)
	assert.NotNil(t, obj.Status.LastTransitionTime)
	assert.True(t, meta.IsStatusConditionTrue(obj.Status.Conditions, dbupdatev1.ConditionReady))
	assert.True(t, meta.IsStatusConditionFalse(obj.Status.Conditions, dbupdatev1.ConditionMigrating))

	assert.Equal(t, []string{"1.2.0"}, f.versions)
	assert.Equal(t, []events.EventReason{
		events.ReasonMigrationStarted,
		events.ReasonMigrationSucceeded,
		events.ReasonDownstreamUpdated,
		events.ReasonVersionConverged,
	}, f.emitter.reasons())
	assert.Equal(t, "orders-api", f.emitter.events[0].data.Deployment)
	assert.Equal(t, "1.1.0", f.emitter.events[0].data.CurrentVersion)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.MigrationTasks.WithLabelValues("created")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.MigrationTasks.WithLabelValues("succeeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.DownstreamUpdates.WithLabelValues("success")))
}

func TestDatabaseUpdateReconciler_NothingToDo(t *testing.T) {
	statusWrites := 0
	funcs := &interceptor.Funcs{
		SubResourceUpdate: func(ctx context.Context, c client.Client, sub string, obj client.Object, opts ...client.SubResourceUpdateOption) error {
			statusWrites++
			return c.Status().Update(ctx, obj, opts...)
		},
	}
	f := newFixture(t, migration.TaskSucceeded, funcs, newDatabaseUpdate("1.2.0", "1.2.0"))

	require.NoError(t, f.reconcile(t).Error)
	require.NoError(t, f.reconcile(t).Error)

	assert.Equal(t, 1, statusWrites, "second reconcile must not rewrite an unchanged status")
	assert.Empty(t, f.versions)
	assert.Empty(t, f.emitter.reasons())
	assert.Equal(t, dbupdatev1.PhaseConverged, f.get(t).Status.Phase)
}

func TestDatabaseUpdateReconciler_DownstreamFailureKeepsVersion(t *testing.T) {
	f := newFixture(t, migration.TaskSucceeded, nil, newDatabaseUpdate("1.2.0", "1.1.0"))
	f.updErr = errors.New("deployments.apps \"orders-api\" not found")

	result := f.reconcile(t)
	require.Error(t, result.Error)
	assert.True(t, result.Requeue)
	assert.Equal(t, 30*time.Second, result.RequeueAfter)

	obj := f.get(t)
	assert.Equal(t, "1.1.0", obj.Status.CurrentVersion)
	assert.Equal(t, dbupdatev1.PhaseUpdatingDownstream, obj.Status.Phase)
	assert.Equal(t, migration.TaskID(migration.ObjectRef{Namespace: "default", Name: "orders-db"}, "1.2.0"), obj.Status.TaskName)
	assert.Contains(t, obj.Status.LastError, "orders-api")
	assert.True(t, meta.IsStatusConditionFalse(obj.Status.Conditions, dbupdatev1.ConditionReady))

	assert.Contains(t, f.emitter.reasons(), events.ReasonDownstreamUpdateFailed)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.DownstreamUpdates.WithLabelValues("error")))

	// The retry reuses the job and commits once the Deployment is reachable.
	f.updErr = nil
	require.NoError(t, f.reconcile(t).Error)
	assert.Equal(t, "1.2.0", f.get(t).Status.CurrentVersion)
	assert.Len(t, f.runner.ensured, 1)
}

func TestDatabaseUpdateReconciler_FailedJob(t *testing.T) {
	f := newFixture(t, migration.TaskFailed, nil, newDatabaseUpdate("1.2.0", ""))

	result := f.reconcile(t)
	require.Error(t, result.Error)
	assert.ErrorIs(t, result.Error, migration.ErrTaskFailed)
	assert.Equal(t, 30*time.Second, result.RequeueAfter)

	obj := f.get(t)
	assert.Empty(t, obj.Status.CurrentVersion)
	assert.Equal(t, dbupdatev1.PhaseFailed, obj.Status.Phase)
	cond := meta.FindStatusCondition(obj.Status.Conditions, dbupdatev1.ConditionReady)
	require.NotNil(t, cond)
	assert.Equal(t, ReasonJobFailed, cond.Reason)

	assert.Equal(t, []events.EventReason{events.ReasonMigrationStarted, events.ReasonMigrationFailed}, f.emitter.reasons())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.MigrationTasks.WithLabelValues("failed")))
	assert.Empty(t, f.versions)
}

func TestDatabaseUpdateReconciler_TimeoutStaysMigrating(t *testing.T) {
	f := newFixture(t, migration.TaskRunning, nil, newDatabaseUpdate("1.2.0", "1.1.0"))

	result := f.reconcile(t)
	require.Error(t, result.Error)
	assert.ErrorIs(t, result.Error, migration.ErrPollTimeout)

	obj := f.get(t)
	assert.Equal(t, "1.1.0", obj.Status.CurrentVersion)
	assert.Equal(t, dbupdatev1.PhaseMigrating, obj.Status.Phase)
	assert.Contains(t, f.emitter.reasons(), events.ReasonMigrationTimedOut)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.MigrationTasks.WithLabelValues("timed_out")))

	f.runner.setPhase(migration.TaskSucceeded)
	require.NoError(t, f.reconcile(t).Error)
	assert.Equal(t, "1.2.0", f.get(t).Status.CurrentVersion)
}

func TestDatabaseUpdateReconciler_StatusConflictIsRetried(t *testing.T) {
	conflicts := 1
	funcs := &interceptor.Funcs{
		SubResourceUpdate: func(ctx context.Context, c client.Client, sub string, obj client.Object, opts ...client.SubResourceUpdateOption) error {
			du, ok := obj.(*dbupdatev1.DatabaseUpdate)
			if ok && du.Status.Phase == dbupdatev1.PhaseConverged && conflicts > 0 {
				conflicts--
				return apierrors.NewConflict(schema.GroupResource{Group: dbupdatev1.GroupVersion.Group, Resource: "databaseupdates"}, obj.GetName(), nil)
			}
			return c.Status().Update(ctx, obj, opts...)
		},
	}
	f := newFixture(t, migration.TaskSucceeded, funcs, newDatabaseUpdate("1.2.0", "1.1.0"))

	require.NoError(t, f.reconcile(t).Error)
	assert.Equal(t, "1.2.0", f.get(t).Status.CurrentVersion)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.StatusSync.WithLabelValues("conflict")))
}

func TestDatabaseUpdateReconciler_NotFoundForgets(t *testing.T) {
	f := newFixture(t, migration.TaskSucceeded, nil)
	engine := &forgetfulEngine{}
	f.rec.engine = engine

	result := f.reconcile(t)
	require.NoError(t, result.Error)
	require.Len(t, engine.forgotten, 1)
	assert.Equal(t, "default/orders-db", engine.forgotten[0].String())
}

func TestDatabaseUpdateReconciler_SkipsObjectBeingDeleted(t *testing.T) {
	obj := newDatabaseUpdate("1.2.0", "1.1.0")
	now := metav1.Now()
	obj.DeletionTimestamp = &now
	obj.Finalizers = []string{"dbupdater.io/test"}

	f := newFixture(t, migration.TaskSucceeded, nil, obj)

	require.NoError(t, f.reconcile(t).Error)
	assert.Empty(t, f.runner.ensured)
	assert.Equal(t, "1.1.0", f.get(t).Status.CurrentVersion)
}

func TestFailurePhase(t *testing.T) {
	tests := []struct {
		name   string
		out    migration.Outcome
		phase  dbupdatev1.DatabaseUpdatePhase
		reason string
	}{
		{"downstream", migration.Outcome{Stage: migration.StageDownstream, Err: errors.New("x")}, dbupdatev1.PhaseUpdatingDownstream, ReasonDownstreamPending},
		{"job failed", migration.Outcome{Stage: migration.StageAwait, Err: migration.ErrTaskFailed}, dbupdatev1.PhaseFailed, ReasonJobFailed},
		{"create failed", migration.Outcome{Stage: migration.StageEnsure, Err: errors.New("forbidden")}, dbupdatev1.PhaseFailed, ReasonJobCreateFailed},
		{"timeout", migration.Outcome{Stage: migration.StageAwait, Err: migration.ErrPollTimeout}, dbupdatev1.PhaseMigrating, ReasonJobTimedOut},
		{"cancelled", migration.Outcome{Stage: migration.StageAwait, Err: context.Canceled}, dbupdatev1.PhaseMigrating, ReasonReconcileCancelled},
		{"task gone", migration.Outcome{Stage: migration.StageAwait, Err: migration.ErrTaskNotFound}, dbupdatev1.PhaseMigrating, ReasonJobRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phase, reason := failurePhase(tt.out)
			assert.Equal(t, tt.phase, phase)
			assert.Equal(t, tt.reason, reason)
		})
	}
}
