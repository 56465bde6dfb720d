// Package cmd provides the selectord command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "selectord",
	Short: "selectord - proxy selector admin service",
	Long: `selectord manages proxy selectors together with their discovery,
discovery handler, discovery relation and upstream records.

Configuration is read from SELECTORD_* environment variables.
Running without a subcommand is the same as "selectord serve".

Commands:
  serve       Start the admin HTTP API
  seed        Apply a seed file once and exit
  version     Print version information`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ selectord failed: %v\n", err)
		os.Exit(1)
	}
}
