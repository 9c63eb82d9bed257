// Package cmd defines the quill CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quill",
		Short: "Request signing and batch scheduling service for scraping agents.",
		Long: `quill signs outbound requests against site-specific signature schemes,
schedules batches of them through rate and concurrency limits, and recovers
from the faults anti-automation defenses throw back.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus QUILL_* env)")
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSchemesCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
