// Package app wires configuration into a running analytics service. It is
// shared by the HTTP server and the operator CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/votes"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/sqlite"
)

// Database is what both the postgres and sqlite clients provide.
type Database interface {
	store.DB
	Close() error
}

// OpenDatabase connects to the configured driver.
func OpenDatabase(cfg *config.Config) (Database, store.Dialect, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, store.SQLite, err
		}
		return db, store.SQLite, nil
	default:
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, store.Postgres, err
		}
		return db, store.Postgres, nil
	}
}

// Options adjust what Build wires beyond the database.
type Options struct {
	// Source replaces the database vote tables, e.g. with a JSON file.
	Source votes.Source

	Metrics *metrics.Metrics

	// Events enables the snapshot-published producer when Kafka is enabled.
	Events bool
}

// App is a fully wired service and everything that must be closed with it.
type App struct {
	Config  *config.Config
	DB      Database
	Store   *store.SQLStore
	Redis   *pkgredis.Client
	Cache   *cache.Cache
	Service *analytics.Service

	closers []func() error
	logger  *slog.Logger
}

// Build opens the database, migrates the artifact tables and assembles the
// service. Redis is optional: when it cannot be reached the service runs
// uncached.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, logger: slog.Default().With("component", "app")}

	db, dialect, err := OpenDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Store.Driver, err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	a.Store = store.New(db, dialect, store.WithRetention(cfg.Store.SnapshotRetention))
	if err := a.Store.Migrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrating artifact store: %w", err)
	}

	source := opts.Source
	if source == nil {
		source = votes.NewSQLSource(db)
	}

	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			a.logger.Warn("redis unavailable, analytics caching disabled", "error", err)
		} else {
			a.Redis = rc
			a.closers = append(a.closers, rc.Close)
			breaker := resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{})
			if opts.Metrics != nil {
				breaker.OnStateChange(opts.Metrics.ObserveBreaker)
			}
			a.Cache = cache.New(rc, cfg.Redis.CacheTTL, breaker)
			a.logger.Info("analytics cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	parties, err := analytics.PartyTable(cfg.Parties)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("building party table: %w", err)
	}

	deps := analytics.Deps{
		Source:  source,
		Store:   a.Store,
		Parties: parties,
		Cache:   a.Cache,
		Metrics: opts.Metrics,
	}
	if opts.Events && cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SnapshotPublished)
		a.closers = append(a.closers, producer.Close)
		deps.Events = producer
	}

	a.Service, err = analytics.NewService(deps, analytics.OptionsFromConfig(cfg))
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
