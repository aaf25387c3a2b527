package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"dbupdater/internal/config"
	"dbupdater/pkg/logging"
)

// Application bootstraps and runs the operator.
//
// Example usage:
//
//	cfg := app.NewConfig(false, "/etc/dbupdater", app.Overrides{Namespace: "shop"})
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads and validates the configuration, sets up logging and
// initializes all services.
func NewApplication(cfg *Config) (*Application, error) {
	opCfg, err := prepareConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg.OperatorConfig = opCfg

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// prepareConfig returns the effective configuration: config.yaml (unless
// cfg already carries one), then overrides, then validation. Logging is
// configured twice, first from the debug flag so loading can log, then from
// the loaded logging section.
func prepareConfig(cfg *Config) (*config.OperatorConfig, error) {
	bootLevel := logging.LevelInfo
	if cfg.Debug {
		bootLevel = logging.LevelDebug
	}
	logging.InitForCLI(bootLevel, os.Stdout)

	var opCfg config.OperatorConfig
	if cfg.OperatorConfig != nil {
		opCfg = *cfg.OperatorConfig
	} else {
		loaded, err := config.LoadConfig(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load configuration from path: %s", cfg.ConfigPath)
			return nil, fmt.Errorf("failed to load configuration from path %s: %w", cfg.ConfigPath, err)
		}
		opCfg = loaded
	}

	cfg.Overrides.Apply(&opCfg)
	if err := opCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, ok := logging.ParseLevel(opCfg.Logging.Level)
	if !ok {
		logging.Warn("Bootstrap", "Unknown log level %q, using info", opCfg.Logging.Level)
	}
	if cfg.Debug {
		level = logging.LevelDebug
	}
	logging.Init(level, logging.Format(opCfg.Logging.Format), os.Stdout)

	return &opCfg, nil
}

// Run runs the reconcile manager, the HTTP server and the config watcher
// until ctx is cancelled, SIGINT or SIGTERM arrives, or one of them fails.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runServices(ctx, a.services)
}

func runServices(ctx context.Context, services *Services) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := services.Manager.Run(gctx); err != nil {
			return fmt.Errorf("reconcile manager: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return services.Server.Run(gctx)
	})
	if services.Watcher != nil {
		g.Go(func() error {
			// A failing watcher only disables reloads.
			if err := services.Watcher.Run(gctx); err != nil {
				logging.Warn("Bootstrap", "Configuration reload disabled: %v", err)
			}
			return nil
		})
	}

	logging.Info("Bootstrap", "dbupdater running. Press Ctrl+C to stop.")
	err := g.Wait()
	if err != nil {
		logging.Error("Bootstrap", err, "Shutting down after error")
		return err
	}
	logging.Info("Bootstrap", "Shut down cleanly")
	return nil
}
