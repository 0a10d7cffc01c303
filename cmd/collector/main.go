package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"traffic-predictor/internal/collect"
	"traffic-predictor/internal/config"
	"traffic-predictor/internal/db"
	"traffic-predictor/internal/logging"
	"traffic-predictor/internal/metrics"
	"traffic-predictor/internal/provider"
	"traffic-predictor/internal/publisher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	log := logging.NewLogger("collector", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("collector failed", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	routes, err := collect.LoadRoutes(cfg.RoutesFile)
	if err != nil {
		return fmt.Errorf("routes file: %w", err)
	}
	if len(routes) == 0 {
		return fmt.Errorf("no routes in %s", cfg.RoutesFile)
	}
	log.Info("routes loaded", "path", cfg.RoutesFile, "count", len(routes))

	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector()
		srv := mcol.Serve(cfg.MetricsAddr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	client := provider.New(cfg.DirectionsURL, cfg.APIKey, cfg.ProviderTimeout, provider.WithMetrics(mcol))
	opts := []collect.Option{collect.WithMetrics(mcol), collect.WithLocation(cfg.Location)}

	if cfg.DatabaseURL != "" {
		sqlDB, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		opts = append(opts, collect.WithRecorder(db.NewRecorder(sqlDB, "collector")))
	}
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, log, mcol)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer pub.Close()
		opts = append(opts, collect.WithPublisher(pub))
	}

	c := collect.New(client, routes, cfg.RawDataFile, cfg.CollectInterval, log, opts...)
	log.Info("collecting", "output", cfg.RawDataFile, "interval", cfg.CollectInterval)
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
