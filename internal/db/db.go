package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"traffic-predictor/internal/traffic"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Connect opens, pings and migrates in one step.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := Ping(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS route_observations (
  id              BIGSERIAL PRIMARY KEY,
  observed_at     TIMESTAMPTZ      NOT NULL,
  origin          TEXT             NOT NULL,
  destination     TEXT             NOT NULL,
  origin_lat      DOUBLE PRECISION NOT NULL,
  origin_lng      DOUBLE PRECISION NOT NULL,
  destination_lat DOUBLE PRECISION NOT NULL,
  destination_lng DOUBLE PRECISION NOT NULL,
  travel_time     DOUBLE PRECISION NOT NULL,
  traffic_time    DOUBLE PRECISION NOT NULL,
  hour            SMALLINT         NOT NULL,
  day_of_week     SMALLINT         NOT NULL,
  distance_km     DOUBLE PRECISION NOT NULL,
  source          TEXT             NOT NULL DEFAULT 'collector'
);
CREATE INDEX IF NOT EXISTS route_observations_observed_at_idx ON route_observations (observed_at);
`

// EnsureSchema creates the observation table when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertObservation appends one sample. source tags where it came from
// ("collector" or "predictor").
func InsertObservation(ctx context.Context, db *sql.DB, s traffic.Sample, source string) error {
	const q = `
INSERT INTO route_observations
  (observed_at, origin, destination, origin_lat, origin_lng, destination_lat, destination_lng,
   travel_time, traffic_time, hour, day_of_week, distance_km, source)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := db.ExecContext(ctx, q,
		s.Timestamp, s.Origin, s.Destination,
		s.Start.Lat, s.Start.Lng, s.End.Lat, s.End.Lng,
		s.TravelTime, s.TrafficTime, s.Hour, s.DayOfWeek, s.Distance, source,
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// FetchObservations returns samples observed at or after since, oldest first.
// A zero since returns the whole table.
func FetchObservations(ctx context.Context, db *sql.DB, since time.Time) ([]traffic.Sample, error) {
	const q = `
SELECT observed_at, origin, destination, origin_lat, origin_lng, destination_lat, destination_lng,
       travel_time, traffic_time, hour, day_of_week, distance_km
FROM route_observations
WHERE observed_at >= $1
ORDER BY observed_at, id`
	rows, err := db.QueryContext(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []traffic.Sample
	for rows.Next() {
		var s traffic.Sample
		if err := rows.Scan(
			&s.Timestamp, &s.Origin, &s.Destination,
			&s.Start.Lat, &s.Start.Lng, &s.End.Lat, &s.End.Lng,
			&s.TravelTime, &s.TrafficTime, &s.Hour, &s.DayOfWeek, &s.Distance,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Recorder binds a connection and source tag for callers that record samples.
type Recorder struct {
	db     *sql.DB
	source string
}

func NewRecorder(db *sql.DB, source string) *Recorder {
	return &Recorder{db: db, source: source}
}

func (r *Recorder) Record(ctx context.Context, s traffic.Sample) error {
	return InsertObservation(ctx, r.db, s, r.source)
}
