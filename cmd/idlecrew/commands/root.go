// Package commands implements the idlecrew CLI commands using cobra.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "idlecrew",
	Short: "Turn-based crew scheduler for idle games",
	Long: `Idlecrew keeps a ranked backlog of up to 20 global tasks, hands them
to teams through short per-team task lists, and plans one action per
team every turn: move, gather, fight, build, return or rest.

Describe your world in idlecrew.yaml, seed it with a scenario file and
let the daemon advance turns on a schedule.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose output")
	rootCmd.PersistentFlags().String("db", "", "Board database path (overrides config)")
}
