package events

import (
	"time"
)

// EventType represents the type/severity of a Kubernetes Event.
type EventType string

const (
	// EventTypeNormal indicates normal, non-problematic events.
	EventTypeNormal EventType = "Normal"

	// EventTypeWarning indicates events that may require attention.
	EventTypeWarning EventType = "Warning"
)

// EventReason represents the reason code for an event.
type EventReason string

// DatabaseUpdate event reasons
const (
	// ReasonMigrationStarted indicates a migration Job was created.
	ReasonMigrationStarted EventReason = "MigrationStarted"

	// ReasonMigrationSucceeded indicates the migration Job completed.
	ReasonMigrationSucceeded EventReason = "MigrationSucceeded"

	// ReasonMigrationFailed indicates the migration Job failed or could not
	// be created.
	ReasonMigrationFailed EventReason = "MigrationFailed"

	// ReasonMigrationTimedOut indicates the Job did not finish within the
	// poll bound. The wait resumes on the next reconcile.
	ReasonMigrationTimedOut EventReason = "MigrationTimedOut"

	ReasonDownstreamUpdated      EventReason = "DownstreamUpdated"
	ReasonDownstreamUpdateFailed EventReason = "DownstreamUpdateFailed"

	// ReasonVersionConverged indicates status.currentVersion was committed.
	ReasonVersionConverged EventReason = "VersionConverged"
)

// EventData holds the values available to message templates.
type EventData struct {
	Name      string
	Namespace string

	// Version is the desired version.
	Version string

	// CurrentVersion is the version before the migration.
	CurrentVersion string

	TaskName   string
	Attempts   int
	Duration   time.Duration
	Deployment string
	Error      string
}

// getEventType returns the severity for a reason.
func getEventType(reason EventReason) EventType {
	switch reason {
	case ReasonMigrationFailed, ReasonMigrationTimedOut, ReasonDownstreamUpdateFailed:
		return EventTypeWarning
	default:
		return EventTypeNormal
	}
}
