// Package cmd implements the CLI commands for loquat.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loquat-fw/loquat/internal/version"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

// rootCmd represents the base command when called without any subcommands.
// Its single positional argument selects the environment; running it
// starts the pipeline service directly as a single-binary daemon.
var rootCmd = &cobra.Command{
	Use:     "loquat [environment]",
	Short:   "Nine-stage concurrent message/event processing pipeline",
	Version: version.Short(),
	Long: `loquat runs a nine-stage concurrent message/event processing pipeline.
Third parties extend it by registering Workers into its extensible Pools,
and by loading Plugins/Adapters from disk with hot reload.

The single positional argument selects the environment (dev, test, prod),
defaulting to dev if omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (text, json)")
}

// environmentArg resolves the CLI's optional positional environment
// argument, defaulting to "dev".
func environmentArg(args []string) string {
	if len(args) == 0 || args[0] == "" {
		return "dev"
	}
	return args[0]
}

func validateEnvironment(env string) error {
	switch env {
	case "dev", "test", "prod":
		return nil
	default:
		return fmt.Errorf("environment must be one of dev, test, prod, got %q", env)
	}
}
