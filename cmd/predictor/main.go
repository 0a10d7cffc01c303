package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"traffic-predictor/internal/api"
	"traffic-predictor/internal/config"
	"traffic-predictor/internal/db"
	"traffic-predictor/internal/logging"
	"traffic-predictor/internal/metrics"
	"traffic-predictor/internal/model"
	"traffic-predictor/internal/provider"
	"traffic-predictor/internal/publisher"
	"traffic-predictor/internal/routecache"
	"traffic-predictor/internal/service"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	log := logging.NewLogger("predictor", cfg.LogLevel)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("predictor failed", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	// The artifact is loaded once here and shared read-only by every request.
	artifact, err := model.Load(cfg.ModelFile)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	log.Info("model loaded", "path", cfg.ModelFile, "excluded_features", artifact.Model.Excluded)

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector()
		srv := mcol.Serve(cfg.MetricsAddr, log)
		defer shutdown(srv)
	}

	client := provider.New(cfg.DirectionsURL, cfg.APIKey, cfg.ProviderTimeout, provider.WithMetrics(mcol))
	var src service.RouteSource = client
	if cfg.RedisAddr != "" {
		store, err := routecache.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			log.Warn("route cache disabled", "error", err)
		} else {
			defer store.Close()
			src = routecache.New(client, store, cfg.RouteCacheTTL, log, mcol)
			log.Info("route cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.RouteCacheTTL)
		}
	}

	opts := []service.Option{service.WithLogger(log), service.WithMetrics(mcol)}
	if cfg.RecordPredictions {
		if cfg.DatabaseURL == "" {
			log.Warn("RECORD_PREDICTIONS set without a database; recording disabled")
		} else {
			sqlDB, err := db.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			opts = append(opts, service.WithRecorder(db.NewRecorder(sqlDB, service.RecordSource)))
		}
	}
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, log, mcol)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer pub.Close()
		opts = append(opts, service.WithPublisher(pub))
	}

	svc, err := service.New(artifact, src, opts...)
	if err != nil {
		return err
	}

	e := api.NewServer(api.NewHandler(svc, log), log)
	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Block until context cancelled or the listener fails
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
