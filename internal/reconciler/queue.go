package reconciler

import (
	"context"
	"sync"
	"time"
)

// requestKey identifies the resource a request targets. Two requests with
// the same key are never processed concurrently.
func requestKey(req ReconcileRequest) string {
	if req.Namespace != "" {
		return string(req.Type) + "/" + req.Namespace + "/" + req.Name
	}
	return string(req.Type) + "/" + req.Name
}

// workQueue is a FIFO queue that deduplicates by resource and holds back a
// resource while a worker is processing it.
type workQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue []ReconcileRequest

	// processing holds keys handed out by Get and not yet Done.
	processing map[string]bool

	// dirty holds the latest request added while its key was processing.
	dirty map[string]ReconcileRequest

	shuttingDown bool
}

// NewQueue creates a new reconciliation queue.
func NewQueue() ReconcileQueue {
	q := &workQueue{
		processing: make(map[string]bool),
		dirty:      make(map[string]ReconcileRequest),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add enqueues req, replacing a queued request for the same resource.
func (q *workQueue) Add(req ReconcileRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shuttingDown {
		return
	}

	key := requestKey(req)
	if q.processing[key] {
		q.dirty[key] = req
		return
	}

	for i, existing := range q.queue {
		if requestKey(existing) == key {
			q.queue[i] = req
			return
		}
	}

	q.queue = append(q.queue, req)
	q.cond.Signal()
}

// Get blocks until a request is ready, the queue shuts down or ctx ends.
func (q *workQueue) Get(ctx context.Context) (ReconcileRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.queue) == 0 && !q.shuttingDown {
		if ctx.Err() != nil {
			return ReconcileRequest{}, false
		}

		// sync.Cond cannot select on ctx, so a helper broadcasts on
		// cancellation and exits once this wait returns.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
			case <-done:
			}
		}()

		q.cond.Wait()
		close(done)

		if ctx.Err() != nil {
			return ReconcileRequest{}, false
		}
	}

	if len(q.queue) == 0 {
		return ReconcileRequest{}, false
	}

	req := q.queue[0]
	q.queue = q.queue[1:]
	q.processing[requestKey(req)] = true
	return req, true
}

// Done releases the resource of req and requeues it if it changed meanwhile.
func (q *workQueue) Done(req ReconcileRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := requestKey(req)
	delete(q.processing, key)

	if next, ok := q.dirty[key]; ok {
		delete(q.dirty, key)
		if !q.shuttingDown {
			q.queue = append(q.queue, next)
			q.cond.Signal()
		}
	}
}

func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

func (q *workQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuttingDown = true
	q.cond.Broadcast()
}

// DelayedQueue adds delayed requeues on top of a ReconcileQueue. At most one
// timer is pending per resource; a later AddAfter replaces it.
type DelayedQueue struct {
	queue ReconcileQueue

	mu     sync.Mutex
	timers map[string]*time.Timer
	stopCh chan struct{}
	once   sync.Once
}

// NewDelayedQueue creates a queue that supports delayed requeuing.
func NewDelayedQueue() *DelayedQueue {
	return &DelayedQueue{
		queue:  NewQueue(),
		timers: make(map[string]*time.Timer),
		stopCh: make(chan struct{}),
	}
}

// Add enqueues req immediately and cancels any pending delayed requeue for
// the same resource.
func (d *DelayedQueue) Add(req ReconcileRequest) {
	d.cancel(requestKey(req))
	d.queue.Add(req)
}

// AddAfter enqueues req once delay has elapsed.
func (d *DelayedQueue) AddAfter(req ReconcileRequest, delay time.Duration) {
	if delay <= 0 {
		d.Add(req)
		return
	}

	key := requestKey(req)

	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[key]; ok {
		t.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		if d.timers[key] != timer {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()

		select {
		case <-d.stopCh:
		default:
			d.queue.Add(req)
		}
	})
	d.timers[key] = timer
}

func (d *DelayedQueue) cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
		delete(d.timers, key)
	}
}

// Forget cancels a pending delayed requeue for req.
func (d *DelayedQueue) Forget(req ReconcileRequest) {
	d.cancel(requestKey(req))
}

func (d *DelayedQueue) Get(ctx context.Context) (ReconcileRequest, bool) {
	return d.queue.Get(ctx)
}

func (d *DelayedQueue) Done(req ReconcileRequest) {
	d.queue.Done(req)
}

// Len returns the number of requests ready for processing.
func (d *DelayedQueue) Len() int {
	return d.queue.Len()
}

// Waiting returns the number of pending delayed requeues.
func (d *DelayedQueue) Waiting() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Shutdown stops the queue and cancels pending timers.
func (d *DelayedQueue) Shutdown() {
	d.once.Do(func() {
		close(d.stopCh)

		d.mu.Lock()
		for _, t := range d.timers {
			t.Stop()
		}
		d.timers = make(map[string]*time.Timer)
		d.mu.Unlock()

		d.queue.Shutdown()
	})
}
