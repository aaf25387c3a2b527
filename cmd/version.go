package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"dbupdater/internal/jobs"
	dbupdatev1 "dbupdater/pkg/apis/dbupdate/v1"
)

func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the dbupdater version and the API it serves",
		Long: `Print the dbupdater build version, the DatabaseUpdate API group/version
it reconciles and the default migration image.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout(), rootCmd.Version, short)
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the build version")
	return cmd
}

func printVersion(w io.Writer, version string, short bool) {
	if version == "" {
		version = "unknown"
	}
	if short {
		fmt.Fprintln(w, version)
		return
	}
	fmt.Fprintf(w, "dbupdater version %s\n", version)
	fmt.Fprintf(w, "  API:             %s\n", dbupdatev1.GroupVersion)
	fmt.Fprintf(w, "  Migration image: %s\n", jobs.DefaultImage)
}
