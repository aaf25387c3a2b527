// Package server exposes the operator's HTTP endpoint.
//
// Routes:
//
//   - GET  /healthz                            liveness
//   - GET  /readyz                             503 until the reconcile manager runs
//   - GET  /metrics                            Prometheus metrics of the operator
//   - GET  /v1/status                          per-object reconcile status as JSON
//   - POST /v1/reconcile/{namespace}/{name}    enqueue a reconcile now
//
// Request counts and durations are recorded per chi route pattern, so the
// label set stays bounded whatever paths clients send.
package server
