package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wrenlabs/quill/internal/signing"
)

func newSchemesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schemes",
		Short: "List the built-in signature schemes in detection-priority order.",
		Run: func(cmd *cobra.Command, _ []string) {
			m := signing.NewDefaultManager(signing.ManagerConfig{})
			for _, scheme := range m.Schemes() {
				fmt.Fprintln(cmd.OutOrStdout(), scheme)
			}
		},
	}
}
