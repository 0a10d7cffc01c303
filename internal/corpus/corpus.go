// Package corpus reads and writes the append-only historical observation log.
package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"traffic-predictor/internal/traffic"
)

// TimestampLayout is the local-time format of the timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

// MinDistanceKm is the cleaning threshold; shorter routes are dropped.
const MinDistanceKm = 0.1

// Header lists the log columns in file order.
var Header = []string{
	"timestamp",
	"origin",
	"destination",
	"origin_lat",
	"origin_lng",
	"destination_lat",
	"destination_lng",
	"travel_time",
	"traffic_time",
	"hour",
	"day_of_week",
	"distance",
}

// Append adds one sample to the log at path, creating it with a header row
// when it does not exist yet.
func Append(path string, s traffic.Sample) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat corpus: %w", err)
	}
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			f.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write(row(s)); err != nil {
		f.Close()
		return fmt.Errorf("write sample: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush corpus: %w", err)
	}
	return f.Close()
}

// Write emits a complete log (header plus rows) to w.
func Write(w io.Writer, samples []traffic.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, s := range samples {
		if err := cw.Write(row(s)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile replaces path with the given samples.
func WriteFile(path string, samples []traffic.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create corpus: %w", err)
	}
	if err := Write(f, samples); err != nil {
		f.Close()
		return fmt.Errorf("write corpus: %w", err)
	}
	return f.Close()
}

func row(s traffic.Sample) []string {
	return []string{
		s.Timestamp.Format(TimestampLayout),
		s.Origin,
		s.Destination,
		formatFloat(s.Start.Lat),
		formatFloat(s.Start.Lng),
		formatFloat(s.End.Lat),
		formatFloat(s.End.Lng),
		formatFloat(s.TravelTime),
		formatFloat(s.TrafficTime),
		strconv.Itoa(s.Hour),
		strconv.Itoa(s.DayOfWeek),
		formatFloat(s.Distance),
	}
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// Read parses a log. Columns are located by header name, so extra columns
// and reordering are tolerated; missing columns are not.
func Read(r io.Reader, loc *time.Location) ([]traffic.Sample, error) {
	if loc == nil {
		loc = time.Local
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	head, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(head))
	for i, h := range head {
		idx[strings.TrimSpace(h)] = i
	}
	for _, h := range Header {
		if _, ok := idx[h]; !ok {
			return nil, fmt.Errorf("%w: corpus is missing column %q", traffic.ErrMissingInput, h)
		}
	}

	var out []traffic.Sample
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		s, err := parseRow(rec, idx, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// ReadFile parses the log at path.
func ReadFile(path string, loc *time.Location) ([]traffic.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()
	return Read(f, loc)
}

func parseRow(rec []string, idx map[string]int, loc *time.Location) (traffic.Sample, error) {
	field := func(name string) (string, error) {
		i := idx[name]
		if i >= len(rec) {
			return "", fmt.Errorf("%w: column %q", traffic.ErrMissingInput, name)
		}
		return strings.TrimSpace(rec[i]), nil
	}
	var perr error
	num := func(name string) float64 {
		if perr != nil {
			return 0
		}
		s, err := field(name)
		if err != nil {
			perr = err
			return 0
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			perr = fmt.Errorf("%w: %s=%q", traffic.ErrInvalidInput, name, s)
		}
		return v
	}

	var s traffic.Sample
	ts, err := field("timestamp")
	if err != nil {
		return s, err
	}
	if s.Timestamp, err = time.ParseInLocation(TimestampLayout, ts, loc); err != nil {
		return s, fmt.Errorf("%w: timestamp=%q", traffic.ErrInvalidInput, ts)
	}
	if s.Origin, err = field("origin"); err != nil {
		return s, err
	}
	if s.Destination, err = field("destination"); err != nil {
		return s, err
	}
	s.Start = traffic.Coordinate{Lat: num("origin_lat"), Lng: num("origin_lng")}
	s.End = traffic.Coordinate{Lat: num("destination_lat"), Lng: num("destination_lng")}
	s.TravelTime = num("travel_time")
	s.TrafficTime = num("traffic_time")
	s.Hour = int(num("hour"))
	s.DayOfWeek = int(num("day_of_week"))
	s.Distance = num("distance")
	return s, perr
}

// Keep reports whether a sample survives cleaning.
func Keep(s traffic.Sample) bool {
	return s.TrafficTime > 0 && s.TravelTime > 0 && s.Distance > MinDistanceKm
}

// Clean drops samples with non-positive durations or a distance of at most
// MinDistanceKm, returning the survivors and the number dropped.
func Clean(samples []traffic.Sample) ([]traffic.Sample, int) {
	kept := make([]traffic.Sample, 0, len(samples))
	for _, s := range samples {
		if Keep(s) {
			kept = append(kept, s)
		}
	}
	return kept, len(samples) - len(kept)
}

// Observations converts samples for the training pipeline.
func Observations(samples []traffic.Sample) []traffic.Observation {
	out := make([]traffic.Observation, len(samples))
	for i, s := range samples {
		out[i] = s.Observation()
	}
	return out
}
