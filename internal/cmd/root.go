// Package cmd implements the stratus CLI.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fathomlabs/stratus/internal/config"
	"github.com/fathomlabs/stratus/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "stratus",
	Short: "Object storage discovery agent",
	Long: `stratus watches object storage containers and publishes the
discovered object locations to a catalog. It also reads single objects
and object trees by URL, with conditional-fetch support.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return observability.InitCLILogger(rootLogLevel, rootLogFormat)
	},
}

var (
	rootConfigPath string
	rootLogLevel   string
	rootLogFormat  string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootConfigPath, "config", "c", "", "Path to config file (default stratus.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&rootLogFormat, "log-format", "json", "Log format (json|console)")
}

// Execute runs the root command. The process exit code is the one
// embedded by exitError, so callers can branch on distinct outcomes.
func Execute() {
	err := rootCmd.Execute()
	observability.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// loadConfig loads the config file named by --config (or the default
// search path) and applies defaults and validation.
func loadConfig() (*config.Config, error) {
	return config.Load(rootConfigPath)
}

// cliError carries an exit code up to Execute.
type cliError struct {
	code    int
	message string
	err     error
}

func (e *cliError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.message, e.err, e.code)
}

func (e *cliError) Unwrap() error { return e.err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &cliError{code: code, message: message, err: err}
}

// exitCode extracts the embedded exit code, defaulting to 1.
func exitCode(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}
