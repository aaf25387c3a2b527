// Package reconciler drives DatabaseUpdate resources towards their declared
// schema version.
//
// # Architecture
//
//   - Manager: owns the change detector, the work queue and the workers
//   - Reconciler: resource-specific logic, DatabaseUpdateReconciler here
//   - ChangeDetector: KubernetesDetector watches DatabaseUpdate via informers
//   - DelayedQueue: deduplicating queue with delayed requeues
//
// A change event becomes a ReconcileRequest carrying a trace id that is kept
// across retries. Failed reconciliations are retried after the delay the
// reconciler asks for, or with exponential backoff, up to MaxRetries.
// Deleting a resource cancels pending retries and drops reconciler state.
//
// # Usage
//
//	manager := reconciler.NewManager(reconciler.ManagerConfig{
//	    RestConfig: restConfig,
//	    Namespace:  "default",
//	    Metrics:    reconciler.NewMetrics(prometheus.DefaultRegisterer),
//	})
//	if err := manager.RegisterReconciler(dbReconciler); err != nil {
//	    return err
//	}
//	return manager.Run(ctx)
//
// # Status
//
// DatabaseUpdateReconciler writes phase, task name, conditions and the
// sanitized last error on every attempt. status.currentVersion is committed
// only after the migration job succeeded and the downstream Deployment was
// updated.
package reconciler
