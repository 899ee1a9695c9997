package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCoordinatesCmd(g *globalFlags) *cobra.Command {
	var (
		live     bool
		minVotes int
	)
	cmd := &cobra.Command{
		Use:   "coordinates",
		Short: "Print legislator coordinates",
		Long: "Prints the published legislator coordinates, falling back to a live\n" +
			"computation when none are usable. --live always computes.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if !live {
				res, err := a.Service.Coordinates(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			}
			if !cmd.Flags().Changed("min-votes") {
				minVotes = a.Config.Analysis.MinVotesPerLegislator
			}
			res, err := a.Service.LiveCoordinates(cmd.Context(), minVotes)
			if err != nil {
				return err
			}
			if res.Empty() {
				fmt.Fprintf(cmd.ErrOrStderr(), "no legislator has %d or more votes\n", minVotes)
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&live, "live", false, "compute from the current votes instead of the published snapshot")
	f.IntVar(&minVotes, "min-votes", 0, "minimum votes per legislator for --live (default from config)")
	return cmd
}
