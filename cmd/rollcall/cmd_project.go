package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/projection"
)

func newProjectCmd(g *globalFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Place questionnaire responses on the published axes",
		Long: "Reads a JSON array of {\"issueId\": ..., \"value\": 1|-1|0} responses\n" +
			"(or an object with a \"responses\" field) and prints their coordinates.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			responses, err := readResponses(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Service.Project(cmd.Context(), responses)
			if err != nil {
				return err
			}
			if res.Stale() {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d responses name issues outside the basis\n", len(res.Unmatched))
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "responses file, - for stdin")
	return cmd
}

func readResponses(stdin io.Reader, file string) ([]projection.Response, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("reading responses: %w", err)
	}

	var list []projection.Response
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Responses []projection.Response `json:"responses"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parsing responses: %w", err)
	}
	return wrapped.Responses, nil
}
