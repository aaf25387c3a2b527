package migration

import (
	"github.com/Masterminds/semver/v3"
)

// NeedsMigration reports whether desired differs from current.
// Comparison is exact; a downgrade is a migration like any other.
func NeedsMigration(desired, current string) bool {
	return desired != current
}

// VersionChange classifies a version transition for logs and events.
type VersionChange string

const (
	ChangeNone      VersionChange = "None"
	ChangeInitial   VersionChange = "Initial"
	ChangeUpgrade   VersionChange = "Upgrade"
	ChangeDowngrade VersionChange = "Downgrade"
	// ChangeLateral covers versions that are not both semantic versions, or
	// that differ only in metadata.
	ChangeLateral VersionChange = "Lateral"
)

// Direction classifies the move from current to desired. It is informational
// only and never decides whether a migration runs.
func Direction(desired, current string) VersionChange {
	if !NeedsMigration(desired, current) {
		return ChangeNone
	}
	if current == "" {
		return ChangeInitial
	}

	d, err := semver.NewVersion(desired)
	if err != nil {
		return ChangeLateral
	}
	c, err := semver.NewVersion(current)
	if err != nil {
		return ChangeLateral
	}

	switch d.Compare(c) {
	case 1:
		return ChangeUpgrade
	case -1:
		return ChangeDowngrade
	default:
		return ChangeLateral
	}
}
