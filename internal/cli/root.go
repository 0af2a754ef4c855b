package cli

import (
	"github.com/spf13/cobra"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "player",
		Short: "Terminal player for live quiz sessions",
	}
	cmd.AddCommand(newPlayCmd())
	return cmd
}
