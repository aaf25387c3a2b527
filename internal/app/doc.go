// Package app wires the dbupdater operator together and runs it.
//
// NewApplication loads config.yaml from the configured directory, applies the
// command line overrides, validates the result and configures logging. It
// then builds the services:
//
//   - a controller-runtime client for DatabaseUpdates, Jobs and Deployments
//   - the migration engine over the Job runner and the Deployment updater
//   - the DatabaseUpdate reconciler and the reconcile manager
//   - the HTTP server for health, metrics and status
//   - a config watcher that hot-swaps the engine's polling policy
//
// Run executes the manager, the server and the watcher in one errgroup. The
// first failure, a cancelled context or SIGINT/SIGTERM stops all of them.
//
// Example:
//
//	cfg := app.NewConfig(debug, configPath, app.Overrides{
//	    Namespace:       "shop",
//	    PollMaxAttempts: 60,
//	})
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return err
//	}
//	return application.Run(context.Background())
package app
