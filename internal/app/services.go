package app

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"k8s.io/client-go/rest"

	dbclient "dbupdater/internal/client"
	"dbupdater/internal/config"
	"dbupdater/internal/downstream"
	"dbupdater/internal/events"
	"dbupdater/internal/jobs"
	"dbupdater/internal/migration"
	"dbupdater/internal/reconciler"
	"dbupdater/internal/server"
	"dbupdater/pkg/logging"
)

// Services holds the components wired together by InitializeServices.
type Services struct {
	Client   dbclient.Client
	Registry *prometheus.Registry
	Engine   *migration.Engine
	Manager  *reconciler.Manager
	Server   *server.Server

	// Watcher is nil when there is no config directory to watch.
	Watcher *config.Watcher
}

// InitializeServices connects to the cluster and builds the operator.
//
// Initialization order:
//  1. Kubernetes client and rest config
//  2. Metrics registry
//  3. Job runner, downstream updater and migration engine
//  4. DatabaseUpdate reconciler and reconcile manager
//  5. HTTP server and config watcher
func InitializeServices(cfg *Config) (*Services, error) {
	c, restConfig, err := dbclient.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}
	return newServices(cfg, c, restConfig)
}

func newServices(cfg *Config, c dbclient.Client, restConfig *rest.Config) (*Services, error) {
	opCfg := *cfg.OperatorConfig

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := reconciler.NewMetrics(registry)

	runner := jobs.NewRunner(c, opCfg.Job.JobConfig())
	updater, err := downstream.NewDeploymentUpdater(c, opCfg.Target())
	if err != nil {
		return nil, err
	}
	engine, err := migration.NewEngine(runner, updater, opCfg.Migration.Policy())
	if err != nil {
		return nil, err
	}

	dbReconciler := reconciler.NewDatabaseUpdateReconciler(c, engine, events.NewEventGenerator(c), metrics).
		WithDeployment(opCfg.Downstream.Name)

	manager := reconciler.NewManager(reconciler.ManagerConfig{
		RestConfig:       restConfig,
		Namespace:        opCfg.Namespace,
		WorkerCount:      opCfg.Workers,
		MaxRetries:       opCfg.MaxRetries,
		ReconcileTimeout: opCfg.ReconcileTimeout(),
		Metrics:          metrics,
	})
	if err := manager.RegisterReconciler(dbReconciler); err != nil {
		return nil, fmt.Errorf("failed to register reconciler: %w", err)
	}

	logging.Info("Services", "Downstream deployment %s/%s, env %s",
		opCfg.Target().Namespace, opCfg.Target().Name, opCfg.Target().EnvVar)

	return &Services{
		Client:   c,
		Registry: registry,
		Engine:   engine,
		Manager:  manager,
		Server:   server.NewServer(opCfg.Server.Address, manager, registry),
		Watcher:  newWatcher(cfg, engine, manager),
	}, nil
}

// newWatcher hot-swaps the engine's polling policy on config.yaml changes.
// Command line overrides are reapplied to every revision before it is
// validated.
func newWatcher(cfg *Config, engine *migration.Engine, manager *reconciler.Manager) *config.Watcher {
	if cfg.ConfigPath == "" {
		return nil
	}
	if info, err := os.Stat(cfg.ConfigPath); err != nil || !info.IsDir() {
		logging.Info("Services", "Config directory %s not present, configuration reload disabled", cfg.ConfigPath)
		return nil
	}

	return config.NewWatcher(cfg.ConfigPath, reloadPolicy(engine, manager)).
		WithPrepare(cfg.Overrides.Apply)
}

// reloadPolicy applies a validated revision. The reconcile deadline moves
// with the poll bound so that a longer wait is not cut short.
func reloadPolicy(engine *migration.Engine, manager *reconciler.Manager) func(config.OperatorConfig) {
	return func(newCfg config.OperatorConfig) {
		policy := newCfg.Migration.Policy()
		if err := engine.SetPolicy(policy); err != nil {
			logging.Warn("Services", "Keeping current migration policy: %v", err)
			return
		}
		manager.SetReconcileTimeout(newCfg.ReconcileTimeout())
		logging.Info("Services", "Migration policy updated: poll every %v, %d attempts, retry after %v, reconcile timeout %v",
			policy.PollInterval, policy.PollMaxAttempts, policy.RetryDelay, manager.ReconcileTimeout())
	}
}
