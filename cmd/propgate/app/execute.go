package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/propgate/propgate/cmd/propgate/cmd/assess"
	"github.com/propgate/propgate/cmd/propgate/cmd/baseline"
	"github.com/propgate/propgate/cmd/propgate/cmd/history"
	"github.com/propgate/propgate/cmd/propgate/cmd/monitor"
	"github.com/propgate/propgate/cmd/propgate/cmd/release"
	"github.com/propgate/propgate/cmd/propgate/cmd/rollback"
	"github.com/propgate/propgate/cmd/propgate/cmd/validate"
	"github.com/propgate/propgate/cmd/propgate/cmd/version"
	"github.com/propgate/propgate/pkg/logging"
)

// Execute runs the propgate CLI application with the given arguments.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command with all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "propgate",
		Short:   "Quality gate and release pipeline for item property records",
		Version: a.version,
		Long: `Propgate validates property records against their peers and the
statistics of their category, scores their quality, and releases the records
that clear the deployment gate into the production store with backups,
integrity checks and rollback. A scheduled monitor watches production for
regressions after release.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(&cobra.Group{
		ID:    "pipeline",
		Title: "Pipeline Commands:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "operations",
		Title: "Operations Commands:",
	})

	rootCmd.PersistentFlags().StringVar(&a.config.ConfigFile, "config", a.config.ConfigFile, "config file (default is ./propgate.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringP("format", "o", "", "output format: table, wide, json, yaml")
	rootCmd.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")

	rootCmd.SetVersionTemplate("propgate {{.Version}}\n")

	a.registerCommands(rootCmd)

	return rootCmd
}

// setupCommand is called before any command runs.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	verbose := mustGetBool(cmd, "verbose")
	quiet := mustGetBool(cmd, "quiet")
	noColor := mustGetBool(cmd, "no-color")
	format := mustGetString(cmd, "format")
	logLevel := mustGetString(cmd, "log-level")

	a.config.UpdateFromFlags(verbose, quiet, noColor, format, logLevel)

	// Reinitialize logger with updated config; packages logging without a
	// context logger use it too.
	logger := NewLogger(a.config)
	a.logger = &logger
	logging.SetDefault(logger)

	return nil
}

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	// Pipeline commands
	rootCmd.AddCommand(validate.NewCommand(a))
	rootCmd.AddCommand(assess.NewCommand(a))
	rootCmd.AddCommand(release.NewCommand(a))
	rootCmd.AddCommand(rollback.NewCommand(a))

	// Operations commands
	rootCmd.AddCommand(monitor.NewCommand(a))
	rootCmd.AddCommand(baseline.NewCommand(a))
	rootCmd.AddCommand(history.NewCommand(a))

	// Utility commands
	rootCmd.AddCommand(version.NewCommand(a))
}

// ExitOnError prints an error and exits with status 1.
func ExitOnError(err error) {
	if err != nil {
		//nolint:errcheck // Ignoring write error since we're exiting anyway
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// mustGetBool retrieves a boolean flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

// mustGetString retrieves a string flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}
