package main

import (
	"log/slog"
	"os"

	"traffic-predictor/internal/config"
	"traffic-predictor/internal/corpus"
	"traffic-predictor/internal/logging"
)

// cleaner filters the raw collected log into the training file.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	log := logging.NewLogger("cleaner", cfg.LogLevel)

	samples, err := corpus.ReadFile(cfg.RawDataFile, cfg.Location)
	if err != nil {
		log.Error("read raw data", "path", cfg.RawDataFile, "error", err)
		os.Exit(1)
	}
	kept, dropped := corpus.Clean(samples)
	if err := corpus.WriteFile(cfg.TrainingDataFile, kept); err != nil {
		log.Error("write training data", "path", cfg.TrainingDataFile, "error", err)
		os.Exit(1)
	}
	log.Info("data cleaned",
		"input", cfg.RawDataFile, "output", cfg.TrainingDataFile,
		"rows", len(samples), "kept", len(kept), "dropped", dropped)
}
