package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"dbupdater/internal/jobs"
	"dbupdater/pkg/logging"
)

const unknownVersion = "unknown"

type migrationStep struct {
	name     string
	message  string
	duration time.Duration
}

type migrateOptions struct {
	backup   time.Duration
	apply    time.Duration
	finalize time.Duration
	failStep string
}

func (o migrateOptions) steps() []migrationStep {
	return []migrationStep{
		{name: "backup", message: "Backing up current database...", duration: o.backup},
		{name: "apply", message: "Applying migration scripts...", duration: o.apply},
		{name: "finalize", message: "Finalizing update...", duration: o.finalize},
	}
}

// newMigrateCmd creates the command run inside migration Jobs.
func newMigrateCmd() *cobra.Command {
	opts := migrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the database to $" + jobs.EnvTargetVersion,
		Long: `Entry point of the migration Job. Reads the target version from
$` + jobs.EnvTargetVersion + ` and runs the backup, apply and finalize steps.
A non-zero exit marks the Job, and with it the migration, as failed.

--fail-step makes the named step fail, which exercises the operator's
failure handling.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.InitForCLI(logging.LevelInfo, cmd.OutOrStdout())

			version := os.Getenv(jobs.EnvTargetVersion)
			if version == "" {
				version = unknownVersion
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runMigration(ctx, version, opts)
		},
	}

	flags := cmd.Flags()
	flags.DurationVar(&opts.backup, "backup-duration", 2*time.Second, "Duration of the backup step")
	flags.DurationVar(&opts.apply, "apply-duration", 3*time.Second, "Duration of the apply step")
	flags.DurationVar(&opts.finalize, "finalize-duration", 2*time.Second, "Duration of the finalize step")
	flags.StringVar(&opts.failStep, "fail-step", "", "Fail the given step (backup, apply or finalize)")

	return cmd
}

func runMigration(ctx context.Context, version string, opts migrateOptions) error {
	steps := opts.steps()
	if opts.failStep != "" && !hasStep(steps, opts.failStep) {
		return fmt.Errorf("unknown step %q", opts.failStep)
	}

	logging.Info("Migrate", "Starting database update to version: %s", version)

	for _, step := range steps {
		logging.Info("Migrate", "%s", step.message)
		if step.name == opts.failStep {
			err := fmt.Errorf("%s step failed", step.name)
			logging.Error("Migrate", err, "Database update to version %s aborted", version)
			return err
		}
		if err := sleep(ctx, step.duration); err != nil {
			return fmt.Errorf("%s step interrupted: %w", step.name, err)
		}
	}

	logging.Info("Migrate", "Database update completed successfully. Now at version: %s", version)
	return nil
}

func hasStep(steps []migrationStep, name string) bool {
	for _, s := range steps {
		if s.name == name {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
