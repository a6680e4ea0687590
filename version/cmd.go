package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Cmd can be added to other commands to provide a version subcommand with
	// the correct version of tapkit.
	Cmd = &cobra.Command{
		Use:   "version",
		Short: "Print the tapkit version",
		RunE: func(cmd *cobra.Command, args []string) error {
			short, err := cmd.Flags().GetBool("short")
			if err != nil {
				return err
			}
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), Version)
				return nil
			}
			FprintVersion(cmd.OutOrStdout())
			return nil
		},
	}
)

func init() {
	Cmd.Flags().Bool("short", false, "Only print the version number")
}
