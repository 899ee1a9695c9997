package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/app"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/votes"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/logger"
)

type globalFlags struct {
	configPath string
	dataset    string
	sqlitePath string
	logLevel   string
}

// open loads configuration and wires the service. Events are not published
// from the CLI.
func (g *globalFlags) open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.sqlitePath != "" {
		cfg.Store.Driver = config.DriverSQLite
		cfg.Store.SQLitePath = g.sqlitePath
	}
	logger.SetupWriter(os.Stderr, g.logLevel, "text")

	opts := app.Options{}
	if g.dataset != "" {
		opts.Source = votes.FileSource{Path: g.dataset}
	}
	return app.Build(ctx, cfg, opts)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
