package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dbupdater/internal/app"
	"dbupdater/internal/config"
)

type serveOptions struct {
	debug      bool
	configPath string
	overrides  app.Overrides
}

// newServeCmd creates the command that runs the operator.
func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the DatabaseUpdate operator",
		Long: `Runs the operator until interrupted.

Configuration is read from config.yaml in --config-path (default
~/.config/dbupdater). Flags override the file. Changes to the migration
section of config.yaml are applied without a restart.

The operator serves /healthz, /readyz, /metrics and /v1/status on
--metrics-address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flags.StringVar(&opts.configPath, "config-path", "", "Directory containing config.yaml")
	flags.StringVar(&opts.overrides.Namespace, "namespace", "", "Only watch DatabaseUpdates in this namespace")
	flags.StringVar(&opts.overrides.MetricsAddress, "metrics-address", "", fmt.Sprintf("Address of the health and metrics endpoint (default %q)", config.DefaultServerAddress))
	flags.StringVar(&opts.overrides.DownstreamDeployment, "downstream-deployment", "", "Deployment that receives the migrated version")
	flags.DurationVar(&opts.overrides.PollInterval, "poll-interval", 0, "Time between migration Job polls (default 5s)")
	flags.IntVar(&opts.overrides.PollMaxAttempts, "poll-max-attempts", 0, "Polls before a migration counts as timed out (default 36)")
	flags.DurationVar(&opts.overrides.RetryDelay, "retry-delay", 0, "Delay before retrying a failed reconciliation (default 30s)")

	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	configPath := opts.configPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}

	application, err := app.NewApplication(app.NewConfig(opts.debug, configPath, opts.overrides))
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}
