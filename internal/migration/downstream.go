package migration

import "context"

// DownstreamUpdater writes a migrated version into the downstream workload.
// Calling it again with the same version must be harmless.
type DownstreamUpdater interface {
	UpdateVersion(ctx context.Context, version string) error
}

// DownstreamUpdaterFunc adapts a function to DownstreamUpdater.
type DownstreamUpdaterFunc func(ctx context.Context, version string) error

// UpdateVersion calls f.
func (f DownstreamUpdaterFunc) UpdateVersion(ctx context.Context, version string) error {
	return f(ctx, version)
}
