// rollcall is the operator CLI for the voting analytics engine.
//
// Usage:
//
//	rollcall recompute   [--config=<yaml>] [--dataset=<json>] [--sqlite=<path>]
//	rollcall coordinates [--live] [--min-votes=N]
//	rollcall project     -f <responses.json|->
//	rollcall parties
//	rollcall snapshot    [--history=N]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "rollcall",
		Short: "Ideological mapping of roll-call votes",
		Long: "rollcall recomputes and inspects the published voting analytics:\n" +
			"principal axes, legislator coordinates, party agreement and cohesion.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&g.configPath, "config", "", "path to YAML config (defaults plus VPA_* environment)")
	f.StringVar(&g.dataset, "dataset", "", "read votes from a JSON dataset instead of the database")
	f.StringVar(&g.sqlitePath, "sqlite", "", "use the SQLite database at this path")
	f.StringVar(&g.logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(
		newRecomputeCmd(g),
		newCoordinatesCmd(g),
		newProjectCmd(g),
		newPartiesCmd(g),
		newSnapshotCmd(g),
	)
	return root
}
