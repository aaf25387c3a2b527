// Package client provides Kubernetes access for dbupdater.
//
// Client embeds a controller-runtime client built on a scheme that knows
// the built-in Kubernetes types and the DatabaseUpdate CRD, and adds typed
// helpers for the operations the operator performs on DatabaseUpdate
// objects: reading them, writing their status subresource and recording
// Kubernetes Events against them.
//
// # Configuration Detection
//
// NewClient uses controller-runtime's standard configuration discovery:
// the --kubeconfig flag, the KUBECONFIG environment variable, in-cluster
// service account credentials, and finally ~/.kube/config.
//
// # Testing
//
// NewFromClient wraps any controller-runtime client, which lets tests use
// the fake client from sigs.k8s.io/controller-runtime/pkg/client/fake with
// the scheme returned by NewScheme.
package client
