package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// rootMain is the entry point for the root command.
func rootMain(command *cobra.Command, _ []string) error {
	// If no commands were given, print help information and bail.
	command.Help()
	return nil
}

// rootCommand is the root command.
var rootCommand = &cobra.Command{
	Use:          "fanowatch",
	Short:        "Monitor and gate filesystem activity using fanotify",
	RunE:         rootMain,
	SilenceUsage: true,
}

// rootConfiguration stores configuration for the root command.
var rootConfiguration struct {
	// verbose enables debug logging.
	verbose bool
}

func init() {
	flags := rootCommand.PersistentFlags()
	flags.SortFlags = false
	flags.BoolVarP(&rootConfiguration.verbose, "verbose", "v", false, "Enable debug logging")

	rootCommand.PersistentPreRun = func(*cobra.Command, []string) {
		if rootConfiguration.verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	}

	rootCommand.AddCommand(
		watchCommand,
		guardCommand,
		statsCommand,
	)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
