package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "brio",
	Short: "Branch lifecycle kernel",
	Long: `Brio orchestrates isolated agent branches: create a sandboxed working
copy, run a set of agents against it sequentially or in parallel, and merge
the result back with one of several conflict-resolution strategies.

Available commands:
  branch   Create, run, merge, and recover branches
  version  Show version information

Use "brio [command] --help" for more information about a command.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version()
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(branchCmd)
}
