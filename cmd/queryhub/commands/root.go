package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configDir  string
	dbPath     string
	jsonOutput bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "queryhub",
		Short: "queryhub - declarative report execution",
		Long: `queryhub executes declarative reports: each report is an ordered set of
components that query configured data providers concurrently, render their
results and assemble them into a single document.

Provider and credential instances are cached per run, failing components
never block their siblings, and transient query failures are retried with
exponential backoff.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "configuration directory")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "run history database path (empty disables history)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
