package migration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testObject = ObjectRef{Namespace: "default", Name: "orders-db", UID: "1234"}

func testPolicy(attempts int) Policy {
	return Policy{
		PollInterval:    time.Millisecond,
		PollMaxAttempts: attempts,
		RetryDelay:      30 * time.Second,
	}
}

func newTestEngine(t *testing.T, runner TaskRunner, updater DownstreamUpdater, attempts int) *Engine {
	t.Helper()
	engine, err := NewEngine(runner, updater, testPolicy(attempts))
	require.NoError(t, err)
	return engine
}

func TestReconcile_NoOpWhenVersionsMatch(t *testing.T) {
	runner := newFakeRunner(nil, TaskSucceeded)
	updater := &fakeUpdater{}
	engine := newTestEngine(t, runner, updater, 3)

	out := engine.Reconcile(context.Background(),
		DesiredState{Version: "1.2.0"},
		ObservedStatus{CurrentVersion: "1.2.0"},
		testObject)

	assert.True(t, out.Converged)
	assert.False(t, out.Retryable())
	assert.Equal(t, "1.2.0", out.Status.CurrentVersion)
	assert.Zero(t, out.RetryAfter)
	assert.Equal(t, 0, runner.ensureCount())
	assert.Equal(t, 0, runner.pollCount())
	assert.Equal(t, 0, updater.count())
}

func TestReconcile_NoOpForEmptyDesiredAndNeverMigrated(t *testing.T) {
	runner := newFakeRunner(nil)
	updater := &fakeUpdater{}
	engine := newTestEngine(t, runner, updater, 3)

	out := engine.Reconcile(context.Background(), DesiredState{}, ObservedStatus{}, testObject)

	assert.True(t, out.Converged)
	assert.Equal(t, 0, runner.ensureCount())
	assert.Equal(t, 0, updater.count())
}

func TestReconcile_ConvergesInOrder(t *testing.T) {
	log := &callLog{}
	runner := newFakeRunner(log, TaskSucceeded)
	updater := &fakeUpdater{log: log}
	engine := newTestEngine(t, runner, updater, 3)

	out := engine.Reconcile(context.Background(),
		DesiredState{Version: "v2"},
		ObservedStatus{CurrentVersion: "v1"},
		testObject)

	require.True(t, out.Converged, "unexpected error: %v", out.Err)
	assert.Equal(t, ObservedStatus{CurrentVersion: "v2"}, out.Status)
	assert.Equal(t, map[string]string{"currentVersion": "v2"}, out.Status.AsMap())
	assert.Equal(t, Created, out.Creation)
	assert.Equal(t, TaskSucceeded, out.Phase)
	assert.Equal(t, ChangeUpgrade, out.Change)
	assert.Equal(t, 1, runner.ensureCount())
	assert.Equal(t, []string{"v2"}, updater.versions)
	assert.Equal(t, []string{"ensureTask", "pollOnce", "updateVersion"}, log.snapshot())
}

func TestReconcile_PendingPendingSucceededScenario(t *testing.T) {
	runner := newFakeRunner(nil, TaskPending, TaskPending, TaskSucceeded)
	updater := &fakeUpdater{}
	engine := newTestEngine(t, runner, updater, 36)

	out := engine.Reconcile(context.Background(),
		DesiredState{Version: "1.2.0"},
		ObservedStatus{CurrentVersion: "1.1.0"},
		testObject)

	require.True(t, out.Converged, "unexpected error: %v", out.Err)
	assert.Equal(t, "1.2.0", out.Status.CurrentVersion)
	assert.Equal(t, 3, runner.pollCount())
	assert.Equal(t, 3, out.PollAttempts)
	assert.Equal(t, 1, runner.ensureCount())
	assert.Equal(t, 1, updater.count())
}

func TestReconcile_ConcurrentSameObjectCreatesOneTask(t *testing.T) {
	runner := newFakeRunner(nil, TaskSucceeded)
	updater := &fakeUpdater{}
	engine := newTestEngine(t, runner, updater, 3)

	// Both reconciliations must be inside EnsureTask before either returns.
	var arrived sync.WaitGroup
	arrived.Add(2)
	runner.beforeEnsure = func() {
		arrived.Done()
		arrived.Wait()
	}

	outcomes := make([]Outcome, 2)
	var wg sync.WaitGroup
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = engine.Reconcile(context.Background(),
				DesiredState{Version: "v2"},
				ObservedStatus{CurrentVersion: "v1"},
				testObject)
		}(i)
	}
	wg.Wait()

	require.Len(t, runner.ensureIDs, 2)
	assert.Equal(t, runner.ensureIDs[0], runner.ensureIDs[1])
	assert.Equal(t, 1, runner.taskCount())

	creations := []CreateResult{outcomes[0].Creation, outcomes[1].Creation}
	assert.ElementsMatch(t, []CreateResult{Created, AlreadyExists}, creations)
	for _, out := range outcomes {
		assert.True(t, out.Converged, "unexpected error: %v", out.Err)
	}
}

func TestReconcile_TimeoutLeavesStatusAndResumesPolling(t *testing.T) {
	runner := newFakeRunner(nil, TaskRunning)
	updater := &fakeUpdater{}
	engine := newTestEngine(t, runner, updater, 4)
	prior := ObservedStatus{CurrentVersion: "v1"}

	out := engine.Reconcile(context.Background(), DesiredState{Version: "v2"}, prior, testObject)

	assert.True(t, out.Retryable())
	assert.Equal(t, prior, out.Status)
	assert.Equal(t, 30*time.Second, out.RetryAfter)
	assert.Equal(t, StageAwait, out.Stage)
	assert.ErrorIs(t, out.Err, ErrPollTimeout)
	assert.Equal(t, 4, runner.pollCount())
	assert.Equal(t, TaskRunning, out.Phase)
	assert.Equal(t, 0, updater.count())

	runner.setPhases(TaskSucceeded)
	out = engine.Reconcile(context.Background(), DesiredState{Version: "v2"}, prior, testObject)

	require.True(t, out.Converged, "unexpected error: %v", out.Err)
	assert.Equal(t, Resumed, out.Creation)
	assert.Equal(t, 1, runner.ensureCount(), "second reconcile must not ensure the task again")
	assert.Equal(t, 5, runner.pollCount())
}

func TestReconcile_DownstreamFailureDoesNotRecreateTask(t *testing.T) {
	runner := newFakeRunner(nil, TaskSucceeded)
	updater := &fakeUpdater{err: errors.New("deployment update rejected")}
	engine := newTestEngine(t, runner, updater, 3)
	prior := ObservedStatus{CurrentVersion: "v1"}

	out := engine.Reconcile(context.Background(), DesiredState{Version: "v2"}, prior, testObject)

	assert.True(t, out.Retryable())
	assert.Equal(t, prior, out.Status)
	assert.Equal(t, StageDownstream, out.Stage)
	assert.Equal(t, TaskSucceeded, out.Phase)
	assert.Equal(t, 30*time.Second, out.RetryAfter)

	updater.setErr(nil)
	out = engine.Reconcile(context.Background(), DesiredState{Version: "v2"}, prior, testObject)

	require.True(t, out.Converged, "unexpected error: %v", out.Err)
	assert.Equal(t, "v2", out.Status.CurrentVersion)
	assert.Equal(t, 1, runner.taskCount())
	assert.Equal(t, 1, runner.ensureCount())
	assert.Equal(t, 2, updater.count())
}

func TestReconcile_AlreadyExistingTaskIsUsed(t *testing.T) {
	runner := newFakeRunner(nil, TaskSucceeded)
	id := TaskID(testObject, "v2")
	runner.tasks[id] = Task{ID: id, TargetVersion: "v2", Object: testObject}
	updater := &fakeUpdater{}
	engine := newTestEngine(t, runner, updater, 3)

	out := engine.Reconcile(context.Background(),
		DesiredState{Version: "v2"},
		ObservedStatus{CurrentVersion: "v1"},
		testObject)

	require.True(t, out.Converged, "unexpected error: %v", out.Err)
	assert.Equal(t, AlreadyExists, out.Creation)
	assert.Equal(t, id, out.TaskID)
	assert.Equal(t, 1, runner.taskCount())
}

func TestReconcile_EnsureErrorIsRetryable(t *testing.T) {
	runner := newFakeRunner(nil, TaskSucceeded)
	runner.ensureErr = errors.New("apiserver unavailable")
	updater := &fakeUpdater{}
	engine := newTestEngine(t, runner, updater, 3)
	prior := ObservedStatus{CurrentVersion: "v1"}

	out := engine.Reconcile(context.Background(), DesiredState{Version: "v2"}, prior, testObject)

	assert.True(t, out.Retryable())
	assert.Equal(t, StageEnsure, out.Stage)
	assert.Equal(t, prior, out.Status)
	assert.Equal(t, 30*time.Second, out.RetryAfter)
	assert.Equal(t, 0, runner.pollCount())
	assert.Equal(t, 0, updater.count())

	// A failed creation is not remembered; the next attempt ensures again.
	runner.ensureErr = nil
	out = engine.Reconcile(context.Background(), DesiredState{Version: "v2"}, prior, testObject)
	require.True(t, out.Converged, "unexpected error: %v", out.Err)
	assert.Equal(t, 2, runner.ensureCount())
}

func TestReconcile_FailedTaskIsRetryableWithoutRecreation(t *testing.T) {
	runner := newFakeRunner(nil, TaskPending, TaskFailed)
	updater := &fakeUpdater{}
	engine := newTestEngine(t, runner, updater, 5)
	prior := ObservedStatus{CurrentVersion: "v1"}

	out := engine.Reconcile(context.Background(), DesiredState{Version: "v2"}, prior, testObject)

	assert.True(t, out.Retryable())
	assert.ErrorIs(t, out.Err, ErrTaskFailed)
	assert.Equal(t, TaskFailed, out.Phase)
	assert.Equal(t, 2, out.PollAttempts)
	assert.Equal(t, prior, out.Status)

	out = engine.Reconcile(context.Background(), DesiredState{Version: "v2"}, prior, testObject)

	assert.ErrorIs(t, out.Err, ErrTaskFailed)
	assert.Equal(t, Resumed, out.Creation)
	assert.Equal(t, 1, runner.ensureCount())
	assert.Equal(t, 0, updater.count())
}

func TestReconcile_MissingTaskIsRecreatedNextTime(t *testing.T) {
	runner := newFakeRunner(nil, TaskSucceeded)
	updater := &fakeUpdater{}
	engine := newTestEngine(t, runner, updater, 3)
	prior := ObservedStatus{CurrentVersion: "v1"}
	id := TaskID(testObject, "v2")

	// Remember the task, then let the substrate lose it.
	engine.remember(id, testObject)

	out := engine.Reconcile(context.Background(), DesiredState{Version: "v2"}, prior, testObject)

	assert.True(t, out.Retryable())
	assert.ErrorIs(t, out.Err, ErrTaskNotFound)
	assert.False(t, engine.known(id))

	out = engine.Reconcile(context.Background(), DesiredState{Version: "v2"}, prior, testObject)
	require.True(t, out.Converged, "unexpected error: %v", out.Err)
	assert.Equal(t, Created, out.Creation)
}

func TestReconcile_SucceededTaskIsNotRerunAfterCleanup(t *testing.T) {
	log := &callLog{}
	runner := newFakeRunner(log, TaskSucceeded)
	updater := &fakeUpdater{log: log, err: errors.New("deployment update rejected")}
	engine := newTestEngine(t, runner, updater, 3)
	prior := ObservedStatus{CurrentVersion: "v1"}
	id := TaskID(testObject, "v2")

	out := engine.Reconcile(context.Background(), DesiredState{Version: "v2"}, prior, testObject)
	require.Equal(t, StageDownstream, out.Stage)

	runner.dropTask(id)
	before := len(log.snapshot())

	out = engine.Reconcile(context.Background(), DesiredState{Version: "v2"}, prior, testObject)
	assert.Equal(t, StageDownstream, out.Stage)
	assert.Equal(t, TaskSucceeded, out.Phase)
	assert.Equal(t, Resumed, out.Creation)
	assert.Equal(t, []string{"updateVersion"}, log.snapshot()[before:])

	updater.setErr(nil)
	out = engine.Reconcile(context.Background(), DesiredState{Version: "v2"}, prior, testObject)

	require.True(t, out.Converged, "unexpected error: %v", out.Err)
	assert.Equal(t, "v2", out.Status.CurrentVersion)
	assert.Equal(t, 1, runner.ensureCount())
	assert.Equal(t, 1, runner.pollCount())
	assert.Equal(t, 0, runner.taskCount())
	assert.False(t, engine.known(id), "committed task must leave the ledger")
}

func TestReconcile_CancelledDuringPollDoesNotCommit(t *testing.T) {
	runner := newFakeRunner(nil, TaskRunning)
	updater := &fakeUpdater{}
	engine, err := NewEngine(runner, updater, Policy{
		PollInterval:    time.Hour,
		PollMaxAttempts: 36,
		RetryDelay:      30 * time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome, 1)
	go func() {
		done <- engine.Reconcile(ctx, DesiredState{Version: "v2"}, ObservedStatus{CurrentVersion: "v1"}, testObject)
	}()

	require.Eventually(t, func() bool { return runner.pollCount() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case out := <-done:
		assert.True(t, out.Retryable())
		assert.ErrorIs(t, out.Err, context.Canceled)
		assert.Equal(t, "v1", out.Status.CurrentVersion)
		assert.Equal(t, 0, updater.count())
		assert.Equal(t, 1, runner.taskCount(), "task must be left for the next reconcile")
	case <-time.After(5 * time.Second):
		t.Fatal("reconcile did not return after cancellation")
	}
}

func TestReconcile_DowngradeIsMigrated(t *testing.T) {
	runner := newFakeRunner(nil, TaskSucceeded)
	updater := &fakeUpdater{}
	engine := newTestEngine(t, runner, updater, 3)

	out := engine.Reconcile(context.Background(),
		DesiredState{Version: "1.0.0"},
		ObservedStatus{CurrentVersion: "2.0.0"},
		testObject)

	require.True(t, out.Converged, "unexpected error: %v", out.Err)
	assert.Equal(t, ChangeDowngrade, out.Change)
	assert.Equal(t, "1.0.0", out.Status.CurrentVersion)
}

func TestNewEngine(t *testing.T) {
	runner := newFakeRunner(nil)
	updater := &fakeUpdater{}

	_, err := NewEngine(nil, updater, Policy{})
	assert.Error(t, err)

	_, err = NewEngine(runner, nil, Policy{})
	assert.Error(t, err)

	engine, err := NewEngine(runner, updater, Policy{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), engine.Policy())

	_, err = NewEngine(runner, updater, Policy{PollMaxAttempts: -1})
	assert.Error(t, err)
}

func TestEngine_SetPolicy(t *testing.T) {
	engine := newTestEngine(t, newFakeRunner(nil), &fakeUpdater{}, 3)

	require.NoError(t, engine.SetPolicy(Policy{PollInterval: 2 * time.Second, PollMaxAttempts: 10, RetryDelay: time.Minute}))
	assert.Equal(t, 10, engine.Policy().PollMaxAttempts)
	assert.Equal(t, 18*time.Second, engine.Policy().MaxWait())

	assert.Error(t, engine.SetPolicy(Policy{PollInterval: -time.Second, PollMaxAttempts: 1, RetryDelay: time.Second}))
	assert.Equal(t, 10, engine.Policy().PollMaxAttempts, "invalid policy must not replace the current one")
}

func TestEngine_ForgetObject(t *testing.T) {
	engine := newTestEngine(t, newFakeRunner(nil), &fakeUpdater{}, 3)
	other := ObjectRef{Namespace: "default", Name: "billing-db"}

	engine.remember(TaskID(testObject, "v3"), testObject)
	engine.remember(TaskID(other, "v2"), other)

	engine.ForgetObject(testObject)

	assert.False(t, engine.known(TaskID(testObject, "v3")))
	assert.True(t, engine.known(TaskID(other, "v2")))
}

func TestReconcile_NewVersionReplacesLedgerEntry(t *testing.T) {
	runner := newFakeRunner(nil, TaskRunning)
	updater := &fakeUpdater{}
	engine := newTestEngine(t, runner, updater, 2)
	other := ObjectRef{Namespace: "default", Name: "billing-db"}
	prior := ObservedStatus{CurrentVersion: "v1"}

	engine.remember(TaskID(other, "v2"), other)

	out := engine.Reconcile(context.Background(), DesiredState{Version: "v2"}, prior, testObject)
	require.ErrorIs(t, out.Err, ErrPollTimeout)
	require.True(t, engine.known(TaskID(testObject, "v2")))

	out = engine.Reconcile(context.Background(), DesiredState{Version: "v3"}, prior, testObject)
	require.ErrorIs(t, out.Err, ErrPollTimeout)

	assert.False(t, engine.known(TaskID(testObject, "v2")), "superseded version must be dropped")
	assert.True(t, engine.known(TaskID(testObject, "v3")))
	assert.True(t, engine.known(TaskID(other, "v2")), "other objects keep their entries")
}
