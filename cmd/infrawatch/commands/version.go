package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/infrawatch/infrawatch/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "infrawatch "+version.String())
			return err
		},
	}
}
