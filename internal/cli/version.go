package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/macropower/rulepool/pkg/version"
)

func NewVersionCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetInfo()

			if cmd.Flags().Changed("output") {
				return printData(cmd, info, output)
			}

			mustN(fmt.Fprint(cmd.OutOrStdout(), info.String()))

			return nil
		},
	}

	addOutputFlag(cmd, &output)

	return cmd
}
