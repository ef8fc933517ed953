// Package version prints build metadata
package version

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tphakala/streambridge/internal/buildinfo"
)

// Command creates the version command
func Command(info *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}
}
