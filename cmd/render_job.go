package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"dbupdater/internal/config"
	"dbupdater/internal/jobs"
	"dbupdater/internal/migration"
)

type renderJobOptions struct {
	name       string
	namespace  string
	version    string
	uid        string
	configPath string
}

// newRenderJobCmd creates the command that prints the migration Job the
// operator would create for a DatabaseUpdate.
func newRenderJobCmd() *cobra.Command {
	opts := &renderJobOptions{}

	cmd := &cobra.Command{
		Use:   "render-job",
		Short: "Print the migration Job for a DatabaseUpdate as YAML",
		Long: `Prints the Job the operator creates to migrate the named DatabaseUpdate
to --version. The Job name is the task id, so it is stable for the same
object and version. With --config-path the job section of config.yaml is
used, otherwise the defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return renderJob(cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.name, "name", "", "Name of the DatabaseUpdate")
	flags.StringVar(&opts.namespace, "namespace", "default", "Namespace of the DatabaseUpdate")
	flags.StringVar(&opts.version, "version", "", "Target version")
	flags.StringVar(&opts.uid, "uid", "", "UID of the DatabaseUpdate, adds an owner reference")
	flags.StringVar(&opts.configPath, "config-path", "", "Directory containing config.yaml")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func renderJob(w io.Writer, opts *renderJobOptions) error {
	jobCfg := jobs.DefaultJobConfig()
	if opts.configPath != "" {
		cfg, err := config.LoadConfig(opts.configPath)
		if err != nil {
			return err
		}
		jobCfg = cfg.Job.JobConfig()
	}

	obj := migration.ObjectRef{Namespace: opts.namespace, Name: opts.name, UID: opts.uid}
	task := migration.Task{
		ID:            migration.TaskID(obj, opts.version),
		TargetVersion: opts.version,
		Object:        obj,
	}

	out, err := yaml.Marshal(jobs.BuildJob(task, jobCfg))
	if err != nil {
		return fmt.Errorf("failed to render job: %w", err)
	}
	_, err = w.Write(out)
	return err
}
