// Package collect periodically samples the directions provider for a fixed
// list of routes and appends each answer to the historical corpus.
package collect

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"traffic-predictor/internal/corpus"
	"traffic-predictor/internal/geo"
	"traffic-predictor/internal/publisher"
	"traffic-predictor/internal/traffic"
)

// Route is one origin/destination pair from the routes file.
type Route struct {
	Origin      string
	Destination string
}

// ParseRoutes reads "origin -> destination" lines. Lines without an arrow are ignored.
func ParseRoutes(r io.Reader) ([]Route, error) {
	var out []Route
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		origin, dest, ok := strings.Cut(sc.Text(), "->")
		if !ok {
			continue
		}
		origin, dest = strings.TrimSpace(origin), strings.TrimSpace(dest)
		if origin == "" || dest == "" {
			continue
		}
		out = append(out, Route{Origin: origin, Destination: dest})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read routes: %w", err)
	}
	return out, nil
}

func LoadRoutes(path string) ([]Route, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseRoutes(f)
}

type RouteSource interface {
	Route(ctx context.Context, origin, destination string) (traffic.RouteData, error)
}

type Recorder interface {
	Record(ctx context.Context, s traffic.Sample) error
}

type Publisher interface {
	PublishObservation(msg publisher.ObservationMessage) error
}

type Metrics interface {
	ObservationCollected()
	ObservationFailed(stage string)
	CollectPassObserve(d time.Duration)
}

type Collector struct {
	src      RouteSource
	routes   []Route
	csvPath  string
	interval time.Duration
	log      *slog.Logger

	recorder Recorder
	pub      Publisher
	metrics  Metrics
	loc      *time.Location
	now      func() time.Time
}

type Option func(*Collector)

// WithRecorder adds Postgres as a second sink.
func WithRecorder(r Recorder) Option { return func(c *Collector) { c.recorder = r } }

func WithPublisher(p Publisher) Option { return func(c *Collector) { c.pub = p } }

func WithMetrics(m Metrics) Option { return func(c *Collector) { c.metrics = m } }

// WithLocation sets the zone used for timestamp, hour and day_of_week.
func WithLocation(loc *time.Location) Option { return func(c *Collector) { c.loc = loc } }

func WithClock(now func() time.Time) Option { return func(c *Collector) { c.now = now } }

func New(src RouteSource, routes []Route, csvPath string, interval time.Duration, log *slog.Logger, opts ...Option) *Collector {
	c := &Collector{
		src:      src,
		routes:   routes,
		csvPath:  csvPath,
		interval: interval,
		log:      log,
		loc:      time.Local,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Run performs one pass immediately and then one per interval until ctx is done.
func (c *Collector) Run(ctx context.Context) error {
	c.CollectOnce(ctx)

	tick := time.NewTicker(c.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			c.CollectOnce(ctx)
		}
	}
}

// CollectOnce samples every route once and returns how many were written to
// the corpus. A failing route is logged and skipped.
func (c *Collector) CollectOnce(ctx context.Context) int {
	start := time.Now()
	n := 0
	for _, r := range c.routes {
		if ctx.Err() != nil {
			break
		}
		if c.collectRoute(ctx, r) {
			n++
		}
	}
	if c.metrics != nil {
		c.metrics.CollectPassObserve(time.Since(start))
	}
	c.log.Info("collection pass done", "routes", len(c.routes), "collected", n, "elapsed", time.Since(start))
	return n
}

func (c *Collector) collectRoute(ctx context.Context, r Route) bool {
	rd, err := c.src.Route(ctx, r.Origin, r.Destination)
	if err != nil {
		c.fail("provider", r, err)
		return false
	}
	s := c.sample(r, rd)

	ok := true
	if err := corpus.Append(c.csvPath, s); err != nil {
		c.fail("csv", r, err)
		ok = false
	}
	if c.recorder != nil {
		if err := c.recorder.Record(ctx, s); err != nil {
			c.fail("db", r, err)
		}
	}
	if c.pub != nil {
		if err := c.pub.PublishObservation(publisher.NewObservationMessage(s)); err != nil {
			c.fail("publish", r, err)
		}
	}
	if ok {
		if c.metrics != nil {
			c.metrics.ObservationCollected()
		}
		c.log.Debug("observation logged",
			"origin", r.Origin, "destination", r.Destination,
			"travel_time", s.TravelTime, "traffic_time", s.TrafficTime, "distance_km", s.Distance)
	}
	return ok
}

func (c *Collector) sample(r Route, rd traffic.RouteData) traffic.Sample {
	now := c.now().In(c.loc).Truncate(time.Second)
	return traffic.Sample{
		Timestamp:   now,
		Origin:      r.Origin,
		Destination: r.Destination,
		Start:       rd.Start,
		End:         rd.End,
		TravelTime:  rd.TravelTime,
		TrafficTime: rd.TrafficTime,
		Hour:        now.Hour(),
		DayOfWeek:   traffic.WeekdayIndex(now),
		Distance:    geo.Between(rd.Start, rd.End),
	}
}

func (c *Collector) fail(stage string, r Route, err error) {
	if c.metrics != nil {
		c.metrics.ObservationFailed(stage)
	}
	c.log.Warn("collect route failed",
		"stage", stage, "origin", r.Origin, "destination", r.Destination,
		"kind", traffic.Kind(err), "error", err)
}
