package main

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "dispatchd",
	Short: "dispatchd - meeting transcript dispatch engine",
	Long: `dispatchd reads live transcript fragments, batches them per quiet
period, and dispatches a set of board agents over them: relevance screening,
embedding-based deduplication, priority scheduling with per-agent circuit
breakers, and dependency-gated second-pass agents.`,
	Version: Version,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
}
