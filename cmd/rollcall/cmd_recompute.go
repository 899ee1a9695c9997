package main

import (
	"github.com/spf13/cobra"
)

func newRecomputeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Run the batch analysis and publish a new snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Service.Recompute(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}
