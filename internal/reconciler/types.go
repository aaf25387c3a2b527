package reconciler

import (
	"context"
	"time"

	"k8s.io/client-go/rest"
)

// ResourceType represents the type of resource being reconciled.
type ResourceType string

const (
	// ResourceTypeDatabaseUpdate represents DatabaseUpdate custom resources.
	ResourceTypeDatabaseUpdate ResourceType = "DatabaseUpdate"
)

// ChangeEvent represents a detected change in a resource.
type ChangeEvent struct {
	// Type is the type of resource that changed.
	Type ResourceType

	// Name is the name of the resource that changed.
	Name string

	// Namespace is the Kubernetes namespace of the resource.
	Namespace string

	// Operation describes what kind of change occurred.
	Operation ChangeOperation

	// Timestamp is when the change was detected.
	Timestamp time.Time

	// Source indicates where the change came from.
	Source ChangeSource
}

// ChangeOperation represents the type of change detected.
type ChangeOperation string

const (
	OperationCreate ChangeOperation = "Create"
	OperationUpdate ChangeOperation = "Update"
	OperationDelete ChangeOperation = "Delete"
)

// ChangeSource indicates where a change originated.
type ChangeSource string

const (
	// SourceKubernetes indicates the change came from Kubernetes informers.
	SourceKubernetes ChangeSource = "Kubernetes"

	// SourceManual indicates the change was triggered manually (e.g., API call).
	SourceManual ChangeSource = "Manual"
)

// ReconcileResult represents the outcome of a reconciliation attempt.
type ReconcileResult struct {
	// Requeue indicates whether the resource should be requeued for retry.
	Requeue bool

	// RequeueAfter specifies when to requeue. With a non-nil Error it
	// overrides the exponential backoff.
	RequeueAfter time.Duration

	// Error is any error that occurred during reconciliation.
	Error error
}

// ReconcileRequest represents a request to reconcile a specific resource.
type ReconcileRequest struct {
	Type      ResourceType
	Name      string
	Namespace string

	// Attempt is the current retry attempt number (starts at 1).
	Attempt int

	// LastError is the error from the previous attempt, if any.
	LastError error

	// TraceID correlates the log lines of one change across retries.
	TraceID string
}

// Reconciler is the interface that resource-specific reconcilers must implement.
type Reconciler interface {
	// Reconcile processes a single reconciliation request. It must be
	// idempotent: calling it again with the same input converges to the
	// same state.
	Reconcile(ctx context.Context, req ReconcileRequest) ReconcileResult

	// GetResourceType returns the type of resource this reconciler handles.
	GetResourceType() ResourceType
}

// Forgetter is implemented by reconcilers that keep per-resource state.
// The manager calls Forget when the resource is deleted.
type Forgetter interface {
	Forget(req ReconcileRequest)
}

// ChangeDetector is the interface for components that detect changes in resources.
type ChangeDetector interface {
	// Start begins watching for changes.
	// The detector should send change events to the provided channel.
	Start(ctx context.Context, changes chan<- ChangeEvent) error

	// Stop gracefully stops the change detector.
	Stop() error

	// GetSource returns the source type this detector monitors.
	GetSource() ChangeSource

	// AddResourceType adds a resource type to watch.
	AddResourceType(resourceType ResourceType) error

	// RemoveResourceType removes a resource type from watching.
	RemoveResourceType(resourceType ResourceType) error
}

// ReconcileQueue represents a queue of resources awaiting reconciliation.
type ReconcileQueue interface {
	// Add adds a request to the queue.
	// If the same resource is already queued, the existing entry is updated.
	Add(req ReconcileRequest)

	// Get retrieves the next request from the queue.
	// Blocks until a request is available or the context is cancelled.
	Get(ctx context.Context) (ReconcileRequest, bool)

	// Done marks a request as processed.
	Done(req ReconcileRequest)

	// Len returns the current queue length.
	Len() int

	// Shutdown signals the queue to stop accepting new items.
	Shutdown()
}

// ManagerConfig holds configuration for the ReconcileManager.
type ManagerConfig struct {
	// Detector supplies change events. When nil, a KubernetesDetector is
	// built from RestConfig.
	Detector ChangeDetector

	// RestConfig is used to build the default detector.
	RestConfig *rest.Config

	// Namespace is the Kubernetes namespace to watch (empty for all).
	Namespace string

	// WorkerCount is the number of concurrent reconciliation workers.
	// Defaults to 2 if not specified.
	WorkerCount int

	// MaxRetries is the maximum number of retry attempts for failed reconciliations.
	// Defaults to 10 if not specified.
	MaxRetries int

	// InitialBackoff is the initial backoff duration for retries.
	// Defaults to 1 second if not specified.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration for retries.
	// Defaults to 5 minutes if not specified.
	MaxBackoff time.Duration

	// ReconcileTimeout bounds a single Reconcile call.
	// Defaults to 5 minutes if not specified.
	ReconcileTimeout time.Duration

	// Metrics records reconcile outcomes. Nil disables metrics.
	Metrics *Metrics
}

// ReconcileStatus represents the current status of reconciliation for a resource.
type ReconcileStatus struct {
	ResourceType ResourceType `json:"resourceType"`
	Name         string       `json:"name"`
	Namespace    string       `json:"namespace,omitempty"`

	// LastReconcileTime is when the resource was last successfully reconciled.
	LastReconcileTime *time.Time `json:"lastReconcileTime,omitempty"`

	// LastError is the most recent error, if any.
	LastError string `json:"lastError,omitempty"`

	// RetryCount is the number of retry attempts.
	RetryCount int `json:"retryCount"`

	State   ReconcileState `json:"state"`
	TraceID string         `json:"traceId,omitempty"`
}

// ReconcileState represents the state of a resource's reconciliation.
type ReconcileState string

const (
	// StatePending means the resource is awaiting reconciliation.
	StatePending ReconcileState = "Pending"

	// StateReconciling means reconciliation is in progress.
	StateReconciling ReconcileState = "Reconciling"

	// StateSynced means the resource is successfully reconciled.
	StateSynced ReconcileState = "Synced"

	// StateError means reconciliation failed and will be retried.
	StateError ReconcileState = "Error"

	// StateFailed means reconciliation failed permanently (max retries exceeded).
	StateFailed ReconcileState = "Failed"
)
