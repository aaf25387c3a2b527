// Package jobs runs migration tasks as Kubernetes batch/v1 Jobs.
//
// A task maps to exactly one Job whose name is the task id, created in the
// namespace of the DatabaseUpdate it serves. Creation is create-if-absent:
// the API server rejects a second Job with the same name, and the Runner
// reports that as migration.AlreadyExists. The Job's conditions and
// counters are mapped to a migration.TaskPhase on every poll.
package jobs
