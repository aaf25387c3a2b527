// Package logging provides subsystem-tagged structured logging for dbupdater.
//
// The package is a thin layer over Go's log/slog. Every entry carries a
// "subsystem" attribute so operator output can be filtered by component
// (Bootstrap, Config, Engine, JobRunner, Downstream, ReconcileManager, ...).
//
// # Usage
//
//	logging.Init(logging.LevelInfo, logging.FormatJSON, os.Stderr)
//
//	logging.Info("Engine", "Migrating %s/%s to %s", ns, name, version)
//	logging.Debug("JobRunner", "Polling job %s", jobName)
//	logging.Warn("Downstream", "Deployment %s has no container %q", name, container)
//	logging.Error("Reconciler", err, "Status update failed for %s", key)
//
// # Output Formats
//
// Init accepts FormatText (slog.TextHandler, the default) or FormatJSON
// (slog.JSONHandler). InitForCLI is shorthand for text output.
//
// # Controller-Runtime Integration
//
// Init installs the same handler as the backend of controller-runtime's
// global logger and of klog through logr.FromSlogHandler. Informer, cache
// and client-go output therefore shares the operator's level filter and
// format, and controller-runtime never warns about an unset logger.
//
// # Thread Safety
//
// All functions are safe for concurrent use. Init may be called again to
// reconfigure the level or format; subsequent entries use the new handler.
package logging
