package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
)

// Entry point for the application
func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, errorText(err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "quarry",
		Short: "Search your files, bookmarks and actions from one place",
		Long: `Quarry catalogs directories and bookmarks, ranks them against what you type,
and runs actions on the result. It learns which objects you pick for which
queries and ranks them higher next time.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
	}
	addPersistentFlags(rootCmd)

	// Add subcommands
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(actionsCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(rescanCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(configCmd())
	return rootCmd
}
