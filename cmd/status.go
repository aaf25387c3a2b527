package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	dbclient "dbupdater/internal/client"
	"dbupdater/internal/formatting"
)

// newStatusClient is replaced in tests.
var newStatusClient = func() (dbclient.Client, error) {
	c, _, err := dbclient.NewClient()
	return c, err
}

type statusOptions struct {
	namespace string
	output    string
	color     bool
}

// newStatusCmd creates the command that lists DatabaseUpdates.
func newStatusCmd() *cobra.Command {
	opts := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List DatabaseUpdates with their desired and current versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runStatus(ctx, cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.namespace, "namespace", "n", "", "Namespace to list (default all)")
	flags.StringVarP(&opts.output, "output", "o", string(formatting.FormatTable), "Output format: table, json or yaml")
	flags.BoolVar(&opts.color, "color", false, "Colorize table output")

	return cmd
}

func runStatus(ctx context.Context, w io.Writer, opts *statusOptions) error {
	format, err := formatting.ParseFormat(opts.output)
	if err != nil {
		return err
	}

	c, err := newStatusClient()
	if err != nil {
		return err
	}

	items, err := c.ListDatabaseUpdates(ctx, opts.namespace)
	if err != nil {
		return fmt.Errorf("failed to list DatabaseUpdates: %w", err)
	}

	return formatting.NewFormatter(formatting.Options{Format: format, Color: opts.color}).
		FormatDatabaseUpdates(w, items)
}
