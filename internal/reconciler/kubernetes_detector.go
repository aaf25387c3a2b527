package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/rest"
	toolscache "k8s.io/client-go/tools/cache"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/client"

	dbclient "dbupdater/internal/client"
	dbupdatev1 "dbupdater/pkg/apis/dbupdate/v1"
	"dbupdater/pkg/logging"
)

// KubernetesDetector implements ChangeDetector using controller-runtime informers.
//
// Updates that leave metadata.generation unchanged are dropped, so the
// operator's own status writes do not trigger another reconcile.
type KubernetesDetector struct {
	mu sync.RWMutex

	restConfig *rest.Config

	// namespace to watch; empty watches all namespaces
	namespace string

	cache  cache.Cache
	scheme *runtime.Scheme

	resourceTypes map[ResourceType]bool
	changeChan    chan<- ChangeEvent

	ctx        context.Context
	cancelFunc context.CancelFunc
	running    bool

	informerRegistrations []toolscache.ResourceEventHandlerRegistration
}

// NewKubernetesDetector creates a new Kubernetes change detector.
func NewKubernetesDetector(restConfig *rest.Config, namespace string) *KubernetesDetector {
	return &KubernetesDetector{
		restConfig:    restConfig,
		namespace:     namespace,
		scheme:        dbclient.NewScheme(),
		resourceTypes: make(map[ResourceType]bool),
	}
}

// Start begins watching and returns once the informer caches have synced.
func (d *KubernetesDetector) Start(ctx context.Context, changes chan<- ChangeEvent) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	if d.restConfig == nil {
		d.mu.Unlock()
		return fmt.Errorf("kubernetes detector requires a rest config")
	}

	d.ctx, d.cancelFunc = context.WithCancel(ctx)
	d.changeChan = changes
	d.running = true
	d.mu.Unlock()

	cacheOpts := cache.Options{
		Scheme: d.scheme,
	}
	if d.namespace != "" {
		cacheOpts.DefaultNamespaces = map[string]cache.Config{
			d.namespace: {},
		}
	}

	c, err := cache.New(d.restConfig, cacheOpts)
	if err != nil {
		d.abortStart()
		return fmt.Errorf("failed to create cache: %w", err)
	}

	d.mu.Lock()
	d.cache = c
	d.mu.Unlock()

	if err := d.setupInformers(); err != nil {
		d.abortStart()
		return fmt.Errorf("failed to setup informers: %w", err)
	}

	go func() {
		if err := c.Start(d.ctx); err != nil {
			logging.Error("KubernetesDetector", err, "Cache stopped with error")
		}
	}()

	if !c.WaitForCacheSync(d.ctx) {
		d.abortStart()
		return fmt.Errorf("failed to sync cache")
	}

	logging.Info("KubernetesDetector", "Started watching Kubernetes resources in namespace: %s", d.namespaceDisplay())
	return nil
}

func (d *KubernetesDetector) abortStart() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	if d.cancelFunc != nil {
		d.cancelFunc()
	}
}

func (d *KubernetesDetector) setupInformers() error {
	d.mu.RLock()
	types := make([]ResourceType, 0, len(d.resourceTypes))
	for rt := range d.resourceTypes {
		types = append(types, rt)
	}
	d.mu.RUnlock()

	for _, rt := range types {
		if err := d.setupInformerForType(rt); err != nil {
			return err
		}
	}
	return nil
}

func (d *KubernetesDetector) setupInformerForType(resourceType ResourceType) error {
	var obj client.Object
	switch resourceType {
	case ResourceTypeDatabaseUpdate:
		obj = &dbupdatev1.DatabaseUpdate{}
	default:
		return fmt.Errorf("unsupported resource type: %s", resourceType)
	}

	informer, err := d.cache.GetInformer(d.ctx, obj)
	if err != nil {
		return fmt.Errorf("failed to get informer for %s: %w", resourceType, err)
	}

	registration, err := informer.AddEventHandler(d.createEventHandler(resourceType))
	if err != nil {
		return fmt.Errorf("failed to add event handler for %s: %w", resourceType, err)
	}

	d.mu.Lock()
	d.informerRegistrations = append(d.informerRegistrations, registration)
	d.mu.Unlock()

	logging.Debug("KubernetesDetector", "Setup informer for resource type: %s", resourceType)
	return nil
}

func (d *KubernetesDetector) createEventHandler(resourceType ResourceType) toolscache.ResourceEventHandler {
	return toolscache.ResourceEventHandlerFuncs{
		AddFunc: func(obj interface{}) {
			d.handleAdd(resourceType, obj)
		},
		UpdateFunc: func(oldObj, newObj interface{}) {
			d.handleUpdate(resourceType, oldObj, newObj)
		},
		DeleteFunc: func(obj interface{}) {
			d.handleDelete(resourceType, obj)
		},
	}
}

func (d *KubernetesDetector) handleAdd(resourceType ResourceType, obj interface{}) {
	meta, ok := extractObjectMeta(obj)
	if !ok {
		logging.Warn("KubernetesDetector", "Failed to extract metadata from add event")
		return
	}
	d.sendChangeEvent(newChangeEvent(resourceType, meta, OperationCreate))
}

func (d *KubernetesDetector) handleUpdate(resourceType ResourceType, oldObj, newObj interface{}) {
	meta, ok := extractObjectMeta(newObj)
	if !ok {
		logging.Warn("KubernetesDetector", "Failed to extract metadata from update event")
		return
	}

	if old, ok := extractObjectMeta(oldObj); ok && old.generation == meta.generation && meta.generation != 0 {
		logging.Debug("KubernetesDetector", "Ignoring status-only update of %s/%s", meta.namespace, meta.name)
		return
	}

	d.sendChangeEvent(newChangeEvent(resourceType, meta, OperationUpdate))
}

func (d *KubernetesDetector) handleDelete(resourceType ResourceType, obj interface{}) {
	// Objects deleted while the watch was down arrive wrapped.
	if deletedState, ok := obj.(toolscache.DeletedFinalStateUnknown); ok {
		obj = deletedState.Obj
	}

	meta, ok := extractObjectMeta(obj)
	if !ok {
		logging.Warn("KubernetesDetector", "Failed to extract metadata from delete event")
		return
	}
	d.sendChangeEvent(newChangeEvent(resourceType, meta, OperationDelete))
}

type objectMeta struct {
	name       string
	namespace  string
	generation int64
}

func extractObjectMeta(obj interface{}) (objectMeta, bool) {
	if clientObj, ok := obj.(client.Object); ok {
		return objectMeta{
			name:       clientObj.GetName(),
			namespace:  clientObj.GetNamespace(),
			generation: clientObj.GetGeneration(),
		}, true
	}
	return objectMeta{}, false
}

func newChangeEvent(resourceType ResourceType, meta objectMeta, op ChangeOperation) ChangeEvent {
	return ChangeEvent{
		Type:      resourceType,
		Name:      meta.name,
		Namespace: meta.namespace,
		Operation: op,
		Timestamp: time.Now(),
		Source:    SourceKubernetes,
	}
}

func (d *KubernetesDetector) sendChangeEvent(event ChangeEvent) {
	d.mu.RLock()
	changeChan := d.changeChan
	running := d.running
	d.mu.RUnlock()

	if !running || changeChan == nil {
		return
	}

	select {
	case changeChan <- event:
		logging.Debug("KubernetesDetector", "Emitted change event: %s %s/%s/%s",
			event.Operation, event.Type, event.Namespace, event.Name)
	default:
		logging.Warn("KubernetesDetector", "Change event channel full, dropping event for %s/%s/%s",
			event.Type, event.Namespace, event.Name)
	}
}

// Stop gracefully stops the Kubernetes detector.
func (d *KubernetesDetector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.running = false

	if d.cancelFunc != nil {
		d.cancelFunc()
	}
	// Registrations go away with the cache.
	d.informerRegistrations = nil

	logging.Info("KubernetesDetector", "Stopped Kubernetes detector")
	return nil
}

func (d *KubernetesDetector) GetSource() ChangeSource {
	return SourceKubernetes
}

// AddResourceType adds a resource type to watch. On a running detector the
// informer is registered immediately.
func (d *KubernetesDetector) AddResourceType(resourceType ResourceType) error {
	if !IsValidResourceType(string(resourceType)) {
		return fmt.Errorf("unsupported resource type: %s", resourceType)
	}

	d.mu.Lock()
	already := d.resourceTypes[resourceType]
	d.resourceTypes[resourceType] = true
	running := d.running
	c := d.cache
	d.mu.Unlock()

	if running && c != nil && !already {
		return d.setupInformerForType(resourceType)
	}
	return nil
}

// RemoveResourceType stops tracking a resource type. The controller-runtime
// cache cannot drop a single informer, so its handler stays registered.
func (d *KubernetesDetector) RemoveResourceType(resourceType ResourceType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.resourceTypes, resourceType)
	return nil
}

func (d *KubernetesDetector) namespaceDisplay() string {
	if d.namespace == "" {
		return "all namespaces"
	}
	return d.namespace
}
