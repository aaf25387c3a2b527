package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dbupdater/pkg/logging"
)

const (
	defaultWorkerCount      = 2
	defaultMaxRetries       = 10
	defaultInitialBackoff   = time.Second
	defaultMaxBackoff       = 5 * time.Minute
	defaultReconcileTimeout = 5 * time.Minute
	changeBufferSize        = 100
)

// Manager coordinates all reconciliation activities.
//
// It manages:
//   - the change detector
//   - resource-specific reconcilers
//   - the work queue and worker pool
//   - retries with exponential backoff or the delay a reconciler asks for
type Manager struct {
	mu sync.RWMutex

	config ManagerConfig

	changeDetector ChangeDetector
	reconcilers    map[ResourceType]Reconciler
	queue          *DelayedQueue

	// statusTracker is keyed by requestKey.
	statusTracker map[string]*ReconcileStatus

	changeChan chan ChangeEvent

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	running    bool
}

// NewManager creates a new reconciliation manager.
func NewManager(config ManagerConfig) *Manager {
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaultWorkerCount
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaultMaxRetries
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaultInitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaultMaxBackoff
	}
	if config.ReconcileTimeout <= 0 {
		config.ReconcileTimeout = defaultReconcileTimeout
	}

	return &Manager{
		config:         config,
		changeDetector: config.Detector,
		reconcilers:    make(map[ResourceType]Reconciler),
		queue:          NewDelayedQueue(),
		statusTracker:  make(map[string]*ReconcileStatus),
		changeChan:     make(chan ChangeEvent, changeBufferSize),
	}
}

// RegisterReconciler registers a reconciler for a specific resource type.
func (m *Manager) RegisterReconciler(reconciler Reconciler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	resourceType := reconciler.GetResourceType()
	if _, exists := m.reconcilers[resourceType]; exists {
		return fmt.Errorf("reconciler for %s already registered", resourceType)
	}

	m.reconcilers[resourceType] = reconciler
	logging.Info("ReconcileManager", "Registered reconciler for %s", resourceType)

	if m.changeDetector != nil {
		if err := m.changeDetector.AddResourceType(resourceType); err != nil {
			logging.Warn("ReconcileManager", "Failed to add watch for %s: %v", resourceType, err)
		}
	}
	return nil
}

// Start begins the reconciliation system.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}

	if m.changeDetector == nil {
		if m.config.RestConfig == nil {
			m.mu.Unlock()
			return errors.New("failed to setup change detector: no detector or rest config")
		}
		m.changeDetector = NewKubernetesDetector(m.config.RestConfig, m.config.Namespace)
	}
	for resourceType := range m.reconcilers {
		if err := m.changeDetector.AddResourceType(resourceType); err != nil {
			logging.Warn("ReconcileManager", "Failed to add watch for %s: %v", resourceType, err)
		}
	}

	m.ctx, m.cancelFunc = context.WithCancel(ctx)
	m.running = true
	detector := m.changeDetector
	m.mu.Unlock()

	if err := detector.Start(m.ctx, m.changeChan); err != nil {
		m.mu.Lock()
		m.running = false
		m.cancelFunc()
		m.mu.Unlock()
		return fmt.Errorf("failed to start change detector: %w", err)
	}

	m.wg.Add(1)
	go m.processChangeEvents()

	for i := 0; i < m.config.WorkerCount; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}

	logging.Info("ReconcileManager", "Started with %d workers", m.config.WorkerCount)
	return nil
}

// Run starts the manager, blocks until ctx is done and then stops it.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return m.Stop()
}

func (m *Manager) processChangeEvents() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-m.changeChan:
			if !ok {
				return
			}
			m.handleChangeEvent(event)
		}
	}
}

// handleChangeEvent turns a change into a reconcile request. Deletes are
// not reconciled; they drop the tracked status and any reconciler state.
func (m *Manager) handleChangeEvent(event ChangeEvent) {
	m.mu.RLock()
	reconciler, registered := m.reconcilers[event.Type]
	m.mu.RUnlock()

	if !registered {
		logging.Debug("ReconcileManager", "Skipping change event for unregistered resource type: %s %s/%s",
			event.Operation, event.Type, event.Name)
		return
	}

	req := ReconcileRequest{
		Type:      event.Type,
		Name:      event.Name,
		Namespace: event.Namespace,
		Attempt:   1,
		TraceID:   uuid.NewString(),
	}

	if event.Operation == OperationDelete {
		logging.Debug("ReconcileManager", "Resource deleted: %s", requestKey(req))
		m.queue.Forget(req)
		m.removeStatus(req)
		if f, ok := reconciler.(Forgetter); ok {
			f.Forget(req)
		}
		return
	}

	logging.Debug("ReconcileManager", "Handling change event: %s %s (trace %s)",
		event.Operation, requestKey(req), req.TraceID)

	m.updateStatus(req, StatePending, "")
	m.queue.Add(req)
}

func (m *Manager) worker(id int) {
	defer m.wg.Done()

	logging.Debug("ReconcileManager", "Worker %d started", id)

	for {
		req, ok := m.queue.Get(m.ctx)
		if !ok {
			logging.Debug("ReconcileManager", "Worker %d shutting down", id)
			return
		}

		m.processRequest(req)
		m.queue.Done(req)
	}
}

func (m *Manager) processRequest(req ReconcileRequest) {
	m.mu.RLock()
	reconciler, ok := m.reconcilers[req.Type]
	timeout := m.config.ReconcileTimeout
	m.mu.RUnlock()

	if !ok {
		logging.Warn("ReconcileManager", "No reconciler for resource type: %s", req.Type)
		return
	}

	m.updateStatus(req, StateReconciling, "")

	logging.Debug("ReconcileManager", "Reconciling %s (attempt %d, trace %s)",
		requestKey(req), req.Attempt, req.TraceID)

	ctx, cancel := context.WithTimeout(m.ctx, timeout)
	defer cancel()

	start := time.Now()
	result := reconciler.Reconcile(ctx, req)
	elapsed := time.Since(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) && m.ctx.Err() == nil {
		result.Error = fmt.Errorf("reconciliation timed out after %v", timeout)
		result.Requeue = true
	}

	// A shutdown mid-reconcile is neither success nor failure.
	if m.ctx.Err() != nil {
		logging.Debug("ReconcileManager", "Reconcile of %s interrupted by shutdown", requestKey(req))
		return
	}

	switch {
	case result.Error != nil:
		m.handleReconcileError(req, result, elapsed)
	case result.Requeue || result.RequeueAfter > 0:
		m.config.Metrics.ObserveReconcile(req.Type, ResultRequeued, elapsed)
		m.handleRequeue(req, result)
		m.updateStatus(req, StateSynced, "")
	default:
		m.config.Metrics.ObserveReconcile(req.Type, ResultSynced, elapsed)
		logging.Debug("ReconcileManager", "Successfully reconciled %s", requestKey(req))
		m.updateStatus(req, StateSynced, "")
	}
}

func (m *Manager) handleReconcileError(req ReconcileRequest, result ReconcileResult, elapsed time.Duration) {
	logging.Warn("ReconcileManager", "Reconciliation failed for %s (trace %s): %v",
		requestKey(req), req.TraceID, result.Error)

	sanitized := SanitizeErrorMessage(result.Error.Error())

	if req.Attempt >= m.config.MaxRetries {
		logging.Error("ReconcileManager", result.Error,
			"Max retries exceeded for %s", requestKey(req))
		m.config.Metrics.ObserveReconcile(req.Type, ResultFailed, elapsed)
		m.updateStatus(req, StateFailed, sanitized)
		return
	}

	m.config.Metrics.ObserveReconcile(req.Type, ResultRetry, elapsed)
	m.updateStatus(req, StateError, sanitized)

	delay := result.RequeueAfter
	if delay <= 0 {
		delay = m.calculateBackoff(req.Attempt)
	}

	req.Attempt++
	req.LastError = result.Error
	m.queue.AddAfter(req, delay)

	logging.Debug("ReconcileManager", "Requeuing %s after %v (attempt %d)",
		requestKey(req), delay, req.Attempt)
}

func (m *Manager) handleRequeue(req ReconcileRequest, result ReconcileResult) {
	delay := result.RequeueAfter
	if delay <= 0 {
		delay = m.config.InitialBackoff
	}

	req.Attempt = 1
	req.LastError = nil
	m.queue.AddAfter(req, delay)
	logging.Debug("ReconcileManager", "Requeuing %s after %v", requestKey(req), delay)
}

// calculateBackoff returns InitialBackoff * 2^(attempt-1), capped at MaxBackoff.
func (m *Manager) calculateBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return m.config.MaxBackoff
	}
	backoff := m.config.InitialBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > m.config.MaxBackoff || backoff <= 0 {
		backoff = m.config.MaxBackoff
	}
	return backoff
}

func (m *Manager) updateStatus(req ReconcileRequest, state ReconcileState, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := requestKey(req)
	status, ok := m.statusTracker[key]
	if !ok {
		status = &ReconcileStatus{
			ResourceType: req.Type,
			Name:         req.Name,
			Namespace:    req.Namespace,
		}
		m.statusTracker[key] = status
	}

	status.State = state
	status.LastError = errMsg
	status.TraceID = req.TraceID

	switch state {
	case StateSynced:
		now := time.Now()
		status.LastReconcileTime = &now
		status.RetryCount = 0
	case StateError:
		status.RetryCount++
	}
}

func (m *Manager) removeStatus(req ReconcileRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statusTracker, requestKey(req))
}

// Stop gracefully shuts down the reconciliation manager.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	logging.Info("ReconcileManager", "Stopping reconciliation manager...")

	if m.cancelFunc != nil {
		m.cancelFunc()
	}

	if m.changeDetector != nil {
		if err := m.changeDetector.Stop(); err != nil {
			logging.Error("ReconcileManager", err, "Error stopping change detector")
		}
	}

	m.queue.Shutdown()
	m.wg.Wait()

	logging.Info("ReconcileManager", "Reconciliation manager stopped")
	return nil
}

// ReconcileTimeout returns the deadline applied to each reconcile.
func (m *Manager) ReconcileTimeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ReconcileTimeout
}

// SetReconcileTimeout replaces the deadline for reconciles started from now
// on. Non-positive values are ignored.
func (m *Manager) SetReconcileTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.ReconcileTimeout = timeout
}

// GetStatus returns a copy of the reconciliation status for a resource.
func (m *Manager) GetStatus(resourceType ResourceType, name, namespace string) (ReconcileStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := requestKey(ReconcileRequest{Type: resourceType, Name: name, Namespace: namespace})
	status, ok := m.statusTracker[key]
	if !ok {
		return ReconcileStatus{}, false
	}
	return *status, true
}

// GetAllStatuses returns all reconciliation statuses ordered by resource.
func (m *Manager) GetAllStatuses() []ReconcileStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.statusTracker))
	for key := range m.statusTracker {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	statuses := make([]ReconcileStatus, 0, len(keys))
	for _, key := range keys {
		statuses = append(statuses, *m.statusTracker[key])
	}
	return statuses
}

// TriggerReconcile manually triggers reconciliation for a resource.
func (m *Manager) TriggerReconcile(resourceType ResourceType, name, namespace string) {
	m.handleChangeEvent(ChangeEvent{
		Type:      resourceType,
		Name:      name,
		Namespace: namespace,
		Operation: OperationUpdate,
		Timestamp: time.Now(),
		Source:    SourceManual,
	})
}

// IsRunning returns whether the manager is running.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// GetQueueLength returns the number of requests ready for processing.
func (m *Manager) GetQueueLength() int {
	return m.queue.Len()
}

// GetSource returns the change source of the detector, or "" before Start.
func (m *Manager) GetSource() ChangeSource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.changeDetector == nil {
		return ""
	}
	return m.changeDetector.GetSource()
}
