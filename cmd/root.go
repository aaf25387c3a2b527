package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"dbupdater/internal/config"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfigError indicates config.yaml could not be read or is invalid.
	ExitCodeConfigError = 2
)

// rootCmd represents the base command for the dbupdater application.
var rootCmd = &cobra.Command{
	Use:   "dbupdater",
	Short: "Keep application databases at their declared schema version",
	Long: `dbupdater watches DatabaseUpdate resources. When spec.version differs from
status.currentVersion it runs a migration Job, waits for it to finish, rolls the
new version out to the application Deployment and then records the version in
status.currentVersion.

The same binary is the migration workload ('dbupdater migrate').`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "dbupdater version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	var configErr config.ConfigurationError
	if errors.As(err, &configErr) {
		return ExitCodeConfigError
	}

	var validationErrs config.ValidationErrors
	if errors.As(err, &validationErrs) {
		return ExitCodeConfigError
	}

	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newRenderJobCmd())
	rootCmd.AddCommand(newStatusCmd())
}
