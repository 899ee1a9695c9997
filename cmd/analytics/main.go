// Command analytics runs the voting analytics service.
//
// It serves the published analytics over HTTP, recomputes on a schedule and
// on recompute requests read from Kafka, and announces every published
// snapshot so other instances can drop their caches.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/app"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/gateway/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/gateway/router"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"kafka", cfg.Kafka.Enabled,
		"redis", cfg.Redis.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}

	a, err := app.Build(ctx, cfg, app.Options{Metrics: m, Events: true})
	if err != nil {
		slog.Error("failed to initialise analytics", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	svc := a.Service

	if cfg.Kafka.Enabled {
		requests := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.RecomputeRequests, analytics.HandleRecompute(svc))
		go func() {
			if err := requests.Start(ctx); err != nil {
				slog.Error("recompute consumer error", "error", err)
			}
		}()
		slog.Info("recompute consumer started", "topic", cfg.Kafka.Topics.RecomputeRequests)

		if a.Cache != nil {
			published := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SnapshotPublished, analytics.HandleSnapshotPublished(a.Cache))
			go func() {
				if err := published.Start(ctx); err != nil {
					slog.Error("snapshot consumer error", "error", err)
				}
			}()
		}
	}

	svc.StartPeriodicRecompute(ctx, cfg.Analysis.RecomputeInterval)

	checker := health.NewChecker()
	checker.Register("store", health.PingCheck(a.DB, true))
	checker.Register("snapshot", health.FreshnessCheck(func(ctx context.Context) (time.Time, error) {
		snap, err := a.Store.CurrentSnapshot(ctx)
		if err != nil {
			return time.Time{}, err
		}
		return snap.CreatedAt, nil
	}, 3*cfg.Analysis.RecomputeInterval))
	if a.Redis != nil {
		checker.Register("redis", health.PingCheck(a.Redis, false))
		checker.Register("redis_breaker", health.BreakerCheck(a.Cache.BreakerState))
	}

	limiter := ratelimit.New(cfg.Access.RateLimitWindow)
	defer limiter.Close()

	handler := router.New(router.Deps{
		Analytics: analytics.NewHandler(svc),
		Limiter:   limiter,
		Health:    checker,
		Metrics:   m,
		Access:    cfg.Access,
		Timeout:   cfg.Server.WriteTimeout,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
