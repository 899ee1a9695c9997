package main

import (
	"github.com/spf13/cobra"
)

func newSnapshotCmd(g *globalFlags) *cobra.Command {
	var history int
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Show the current snapshot, or the retained history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if history > 0 {
				snaps, err := a.Store.Snapshots(cmd.Context(), history)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), snaps)
			}
			snap, err := a.Service.CurrentSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().IntVar(&history, "history", 0, "list up to N retained snapshots, newest first")
	return cmd
}

func newPartiesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "parties",
		Short: "Print the published party agreement and cohesion tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			agreement, snapshotID, err := a.Service.PartyAgreement(cmd.Context())
			if err != nil {
				return err
			}
			cohesion, _, err := a.Service.PartyCohesion(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"snapshotId": snapshotID,
				"agreement":  agreement,
				"cohesion":   cohesion,
			})
		},
	}
}
