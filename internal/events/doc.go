// Package events records Kubernetes Events for DatabaseUpdate objects.
//
// Each step of a migration that a cluster operator may want to see with
// kubectl describe is mapped to an EventReason. EventGenerator renders the
// message for a reason from a text/template (with the sprig function map)
// and hands it to a Recorder, normally the operator's Kubernetes client.
//
// Usage:
//
//	generator := events.NewEventGenerator(k8sClient)
//	err := generator.DatabaseUpdateEvent(ctx, obj, events.ReasonMigrationStarted, events.EventData{
//		Version:  "1.2.0",
//		TaskName: "orders-db-1-2-0-3f2a9c1e",
//	})
package events
