package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"traffic-predictor/internal/config"
	"traffic-predictor/internal/corpus"
	"traffic-predictor/internal/db"
	"traffic-predictor/internal/logging"
	"traffic-predictor/internal/model"
	"traffic-predictor/internal/traffic"
	"traffic-predictor/internal/train"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	log := logging.NewLogger("trainer", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("training failed", "kind", traffic.Kind(err), "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	samples, err := load(ctx, cfg)
	if err != nil {
		return err
	}
	kept, dropped := corpus.Clean(samples)
	log.Info("corpus loaded", "source", cfg.TrainingSource, "rows", len(samples), "kept", len(kept), "dropped", dropped)

	opts := train.Options{TestFraction: cfg.TestFraction, Seed: cfg.Seed, ExcludeTarget: cfg.ExcludeTarget}
	if !opts.ExcludeTarget {
		log.Warn("traffic_time is both a feature and the target; the model will learn a near-identity mapping",
			"setting", "EXCLUDE_TARGET_FEATURE=false")
	}

	start := time.Now()
	res, err := train.Train(corpus.Observations(kept), opts)
	if err != nil {
		return err
	}
	log.Info("model trained",
		"mae", res.Metrics.MAE,
		"mse", res.Metrics.MSE,
		"train_rows", res.Metrics.TrainRows,
		"test_rows", res.Metrics.TestRows,
		"elapsed", time.Since(start))

	if err := model.Save(cfg.ModelFile, res.Artifact); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	log.Info("model saved", "path", cfg.ModelFile)
	return nil
}

func load(ctx context.Context, cfg *config.Config) ([]traffic.Sample, error) {
	if cfg.TrainingSource == config.SourcePostgres {
		sqlDB, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		defer sqlDB.Close()
		return db.FetchObservations(ctx, sqlDB, time.Time{})
	}
	return corpus.ReadFile(cfg.TrainingDataFile, cfg.Location)
}
