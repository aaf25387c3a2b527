// Package v1 contains API Schema definitions for the DatabaseUpdate v1 API group.
//
// # API Group: kopf.dev/v1
//
// ## DatabaseUpdate
//
// DatabaseUpdate declares the database schema version an application should
// run against. The operator compares spec.version with status.currentVersion,
// runs a migration Job when they differ, and records the new version in
// status.currentVersion once the Job has succeeded and the downstream
// Deployment has been updated.
//
// Example:
//
//	apiVersion: kopf.dev/v1
//	kind: DatabaseUpdate
//	metadata:
//	  name: orders-db
//	  namespace: default
//	spec:
//	  version: "1.2.0"
//
// +kubebuilder:object:generate=true
// +groupName=kopf.dev
package v1
