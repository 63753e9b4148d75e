package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCommand creates the version command.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "qbox v%s\n", Version)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s, built: %s\n", GitCommit, BuildDate)
		},
	}
}
