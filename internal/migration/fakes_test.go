package migration

import (
	"context"
	"sync"
)

// callLog records collaborator calls in order across fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// fakeRunner is an in-memory task substrate with create-if-absent semantics.
type fakeRunner struct {
	mu  sync.Mutex
	log *callLog

	tasks     map[string]Task
	ensureIDs []string
	polls     int

	// phases is consumed one entry per poll; the last entry repeats.
	phases []TaskPhase

	ensureErr error
	pollErr   error

	// beforeEnsure runs inside EnsureTask before the task is recorded.
	beforeEnsure func()
}

func newFakeRunner(log *callLog, phases ...TaskPhase) *fakeRunner {
	return &fakeRunner{
		log:    log,
		tasks:  make(map[string]Task),
		phases: phases,
	}
}

func (f *fakeRunner) EnsureTask(ctx context.Context, task Task) (CreateResult, error) {
	if f.log != nil {
		f.log.add("ensureTask")
	}
	if f.beforeEnsure != nil {
		f.beforeEnsure()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureIDs = append(f.ensureIDs, task.ID)
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	if _, ok := f.tasks[task.ID]; ok {
		return AlreadyExists, nil
	}
	f.tasks[task.ID] = task
	return Created, nil
}

func (f *fakeRunner) PollOnce(ctx context.Context, task Task) (TaskPhase, error) {
	if f.log != nil {
		f.log.add("pollOnce")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return "", f.pollErr
	}
	if _, ok := f.tasks[task.ID]; !ok {
		return "", ErrTaskNotFound
	}
	if len(f.phases) == 0 {
		return TaskPending, nil
	}
	phase := f.phases[0]
	if len(f.phases) > 1 {
		f.phases = f.phases[1:]
	}
	return phase, nil
}

func (f *fakeRunner) setPhases(phases ...TaskPhase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phases = phases
}

func (f *fakeRunner) ensureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ensureIDs)
}

func (f *fakeRunner) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeRunner) taskCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

// fakeUpdater records downstream updates.
type fakeUpdater struct {
	mu       sync.Mutex
	log      *callLog
	versions []string
	err      error
}

func (f *fakeUpdater) UpdateVersion(ctx context.Context, version string) error {
	if f.log != nil {
		f.log.add("updateVersion")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions = append(f.versions, version)
	return f.err
}

func (f *fakeUpdater) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.versions)
}

func (f *fakeUpdater) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// dropTask removes a task as TTL cleanup would.
func (f *fakeRunner) dropTask(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
}
