package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relayguard",
	Short: "Session authority and execution policy engine for relayed trading plans",
	Long:  "Decides whether relayed on-chain execution requests may proceed: adapter\nallowlist, session delegation, and spend caps, evaluated fail-closed before\nanything touches the chain.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
