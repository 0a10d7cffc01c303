package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIKey          string
	DirectionsURL   string
	ProviderTimeout time.Duration
	HTTPAddr        string

	ModelFile        string
	TrainingDataFile string
	RawDataFile      string
	RoutesFile       string

	CollectInterval time.Duration
	TestFraction    float64
	Seed            uint64
	ExcludeTarget   bool
	TrainingSource  string

	DatabaseURL       string
	NATSURL           string
	NATSSubjectPrefix string
	RedisAddr         string
	RedisDB           int
	RouteCacheTTL     time.Duration
	MetricsAddr       string

	LogLevel          slog.Level
	RecordPredictions bool
	Location          *time.Location
}

const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
)

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:            os.Getenv("GOOGLE_MAPS_API_KEY"),
		DirectionsURL:     getenvDefault("DIRECTIONS_URL", "https://maps.googleapis.com/maps/api/directions/json"),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":5000"),
		ModelFile:         getenvDefault("MODEL_FILE", "traffic_model.json"),
		TrainingDataFile:  getenvDefault("TRAINING_DATA_FILE", "cleaned_traffic_data.csv"),
		RawDataFile:       getenvDefault("RAW_DATA_FILE", "traffic_data.csv"),
		RoutesFile:        getenvDefault("ROUTES_FILE", "routes.txt"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: getenvDefault("NATS_SUBJECT_PREFIX", "traffic"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
		MetricsAddr: os.Getenv("METRICS_ADDR"),
	}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars when PGDATABASE is set.
	// Empty disables Postgres.
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"))
	if cfg.DatabaseURL == "" {
		if db := os.Getenv("PGDATABASE"); db != "" {
			host := getenvDefault("PGHOST", "127.0.0.1")
			port := getenvDefault("PGPORT", "5432")
			user := getenvDefault("PGUSER", "postgres")
			pass := os.Getenv("PGPASSWORD")
			sslmode := getenvDefault("PGSSLMODE", "disable")
			if pass != "" {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
			} else {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
			}
		}
	}

	var err error
	if cfg.ProviderTimeout, err = millis("PROVIDER_TIMEOUT_MS", 5000); err != nil {
		return nil, err
	}
	if cfg.CollectInterval, err = seconds("COLLECT_INTERVAL_SEC", 300); err != nil {
		return nil, err
	}
	if cfg.RouteCacheTTL, err = seconds("ROUTE_CACHE_TTL_SEC", 60); err != nil {
		return nil, err
	}

	// Held-out share of the corpus
	if v := os.Getenv("TRAIN_TEST_FRACTION"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f >= 1 {
			return nil, fmt.Errorf("invalid TRAIN_TEST_FRACTION: %q", v)
		}
		cfg.TestFraction = f
	} else {
		cfg.TestFraction = 0.2
	}

	if v := os.Getenv("TRAIN_SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TRAIN_SEED: %q", v)
		}
		cfg.Seed = n
	} else {
		cfg.Seed = 42
	}

	if cfg.ExcludeTarget, err = boolean("EXCLUDE_TARGET_FEATURE", true); err != nil {
		return nil, err
	}
	if cfg.RecordPredictions, err = boolean("RECORD_PREDICTIONS", false); err != nil {
		return nil, err
	}

	cfg.TrainingSource = strings.ToLower(getenvDefault("TRAINING_SOURCE", SourceCSV))
	switch cfg.TrainingSource {
	case SourceCSV:
	case SourcePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("TRAINING_SOURCE=postgres requires DATABASE_URL or PGDATABASE")
		}
	default:
		return nil, fmt.Errorf("invalid TRAINING_SOURCE: %q", cfg.TrainingSource)
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid REDIS_DB: %q", v)
		}
		cfg.RedisDB = n
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %q", v)
		}
	}

	// Time zone for collected timestamps
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

// RequireAPIKey is checked by the binaries that call the directions provider.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("GOOGLE_MAPS_API_KEY must be set")
	}
	return nil
}

func millis(key string, def int) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(def) * time.Millisecond, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func seconds(key string, def int) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(def) * time.Second, nil
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(sec) * time.Second, nil
}

func boolean(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s: %q", key, v)
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
