package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-predictor/internal/features"
	"traffic-predictor/internal/geo"
	"traffic-predictor/internal/model"
	"traffic-predictor/internal/provider"
	"traffic-predictor/internal/publisher"
	"traffic-predictor/internal/scaler"
	"traffic-predictor/internal/traffic"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func testArtifact() *model.Artifact {
	return &model.Artifact{
		Model: model.Linear{
			Features:  features.Names(),
			Weights:   []float64{0, 0, 0, 0, 120, 0, 30},
			Intercept: 700,
			Excluded:  []string{"traffic_time"},
		},
		Scaler: scaler.Params{
			Features: features.Names(),
			Mean:     []float64{43.6, -79.4, 43.7, -79.4, 700, 820, 6},
			Std:      []float64{0.1, 0.1, 0.1, 0.1, 200, 300, 2},
		},
	}
}

type stubSource struct {
	rd    traffic.RouteData
	err   error
	mu    sync.Mutex
	calls int
}

func (s *stubSource) Route(context.Context, string, string) (traffic.RouteData, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.rd, s.err
}

var (
	routeStart = traffic.Coordinate{Lat: 43.6532, Lng: -79.3832}
	routeEnd   = traffic.Coordinate{Lat: 43.7001, Lng: -79.4163}
)

func request() Request {
	return Request{
		Origin:            "Toronto City Hall",
		Destination:       "Casa Loma",
		OriginCoords:      &traffic.Coordinate{Lat: 43.6534, Lng: -79.3841},
		DestinationCoords: &traffic.Coordinate{Lat: 43.6780, Lng: -79.4094},
	}
}

// expected applies testArtifact by hand.
func expected(travel, distance float64) float64 {
	return 700 + 120*(travel-700)/200 + 30*(distance-6)/2
}

func TestPredictUsesTravelTimeWhenTrafficMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"OK","routes":[{"legs":[{
			"duration":{"value":600,"text":"10 mins"},
			"start_location":{"lat":43.6532,"lng":-79.3832},
			"end_location":{"lat":43.7001,"lng":-79.4163}}]}]}`)
	}))
	defer srv.Close()

	svc, err := New(testArtifact(), provider.New(srv.URL, "k", time.Second), WithLogger(quiet))
	require.NoError(t, err)

	resp, err := svc.Predict(context.Background(), request())
	require.NoError(t, err)

	d := geo.Between(routeStart, routeEnd)
	assert.Equal(t, 600.0, resp.RealTimeData.TravelTime)
	assert.Equal(t, 600.0, resp.RealTimeData.TrafficTime)
	assert.InDelta(t, d, resp.RealTimeData.Distance, 1e-12)
	assert.InDelta(t, expected(600, d), resp.PredictedTrafficTime, 1e-9)
	_, err = uuid.Parse(resp.PredictionID)
	assert.NoError(t, err)
}

func TestPredictClampsNegative(t *testing.T) {
	a := testArtifact()
	a.Model.Intercept = -500
	svc, err := New(a, &stubSource{rd: traffic.RouteData{TravelTime: 300, TrafficTime: 300, Start: routeStart, End: routeEnd}})
	require.NoError(t, err)

	resp, err := svc.Predict(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, 0.0, resp.PredictedTrafficTime)
}

func TestPredictMissingInput(t *testing.T) {
	cases := map[string]func(*Request){
		"no origin":             func(r *Request) { r.Origin = "" },
		"blank destination":     func(r *Request) { r.Destination = "  " },
		"no origin coords":      func(r *Request) { r.OriginCoords = nil },
		"no destination coords": func(r *Request) { r.DestinationCoords = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			src := &stubSource{}
			svc, err := New(testArtifact(), src)
			require.NoError(t, err)

			req := request()
			mutate(&req)
			_, err = svc.Predict(context.Background(), req)
			assert.ErrorIs(t, err, traffic.ErrMissingInput)
			assert.Zero(t, src.calls)
		})
	}
}

func TestPredictInvalidCoordinates(t *testing.T) {
	svc, err := New(testArtifact(), &stubSource{})
	require.NoError(t, err)

	req := request()
	req.DestinationCoords = &traffic.Coordinate{Lat: 95, Lng: 0}
	_, err = svc.Predict(context.Background(), req)
	assert.ErrorIs(t, err, traffic.ErrInvalidInput)
	assert.Contains(t, err.Error(), "destinationCoords")
}

func TestPredictPropagatesProviderKinds(t *testing.T) {
	for _, kind := range []error{traffic.ErrUpstreamUnavailable, traffic.ErrNoRoute} {
		svc, err := New(testArtifact(), &stubSource{err: fmt.Errorf("%w: status", kind)})
		require.NoError(t, err)

		_, err = svc.Predict(context.Background(), request())
		assert.ErrorIs(t, err, kind)
	}
}

func TestPredictBadProviderDataIsUpstream(t *testing.T) {
	cases := map[string]traffic.RouteData{
		"negative travel":  {TravelTime: -60, TrafficTime: 120, Start: routeStart, End: routeEnd},
		"nan traffic":      {TravelTime: 60, TrafficTime: math.NaN(), Start: routeStart, End: routeEnd},
		"infinite traffic": {TravelTime: 60, TrafficTime: math.Inf(1), Start: routeStart, End: routeEnd},
		"bad end location": {TravelTime: 60, TrafficTime: 60, Start: routeStart, End: traffic.Coordinate{Lat: 43.7, Lng: 200}},
	}
	for name, rd := range cases {
		t.Run(name, func(t *testing.T) {
			svc, err := New(testArtifact(), &stubSource{rd: rd})
			require.NoError(t, err)

			_, err = svc.Predict(context.Background(), request())
			assert.ErrorIs(t, err, traffic.ErrUpstreamUnavailable)
			assert.NotErrorIs(t, err, traffic.ErrInvalidInput)

			_, err = svc.Directions(context.Background(), "A", "B")
			assert.ErrorIs(t, err, traffic.ErrUpstreamUnavailable)
		})
	}
}

type recorderFunc func(context.Context, traffic.Sample) error

func (f recorderFunc) Record(ctx context.Context, s traffic.Sample) error { return f(ctx, s) }

type pubFunc func(publisher.PredictionMessage) error

func (f pubFunc) PublishPrediction(m publisher.PredictionMessage) error { return f(m) }

func TestPredictEmitsToSinks(t *testing.T) {
	now := time.Date(2024, 11, 8, 7, 15, 0, 0, time.UTC) // Friday
	var sample traffic.Sample
	var msg publisher.PredictionMessage
	rd := traffic.RouteData{TravelTime: 900, TrafficTime: 1100, Start: routeStart, End: routeEnd}

	svc, err := New(testArtifact(), &stubSource{rd: rd},
		WithClock(func() time.Time { return now }),
		WithRecorder(recorderFunc(func(_ context.Context, s traffic.Sample) error { sample = s; return nil })),
		WithPublisher(pubFunc(func(m publisher.PredictionMessage) error { msg = m; return nil })),
	)
	require.NoError(t, err)

	resp, err := svc.Predict(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, "Toronto City Hall", sample.Origin)
	assert.Equal(t, routeStart, sample.Start)
	assert.Equal(t, 1100.0, sample.TrafficTime)
	assert.Equal(t, 7, sample.Hour)
	assert.Equal(t, 4, sample.DayOfWeek)

	assert.Equal(t, resp.PredictionID, msg.ID)
	assert.Equal(t, resp.PredictedTrafficTime, msg.PredictedTrafficTime)
	assert.Equal(t, "Casa Loma", msg.Destination)
}

func TestPredictSinkFailuresAreIgnored(t *testing.T) {
	rd := traffic.RouteData{TravelTime: 900, TrafficTime: 1100, Start: routeStart, End: routeEnd}
	svc, err := New(testArtifact(), &stubSource{rd: rd}, WithLogger(quiet),
		WithRecorder(recorderFunc(func(context.Context, traffic.Sample) error { return errors.New("db down") })),
		WithPublisher(pubFunc(func(publisher.PredictionMessage) error { return errors.New("nats down") })),
	)
	require.NoError(t, err)

	resp, err := svc.Predict(context.Background(), request())
	require.NoError(t, err)
	assert.InDelta(t, expected(900, geo.Between(routeStart, routeEnd)), resp.PredictedTrafficTime, 1e-9)
}

type metricsRecorder struct {
	ok   int
	errs []error
}

func (m *metricsRecorder) PredictionObserve(_ time.Duration, _ float64, err error) {
	if err != nil {
		m.errs = append(m.errs, err)
		return
	}
	m.ok++
}

func TestPredictObservesMetrics(t *testing.T) {
	m := &metricsRecorder{}
	rd := traffic.RouteData{TravelTime: 900, TrafficTime: 1100, Start: routeStart, End: routeEnd}
	svc, err := New(testArtifact(), &stubSource{rd: rd}, WithMetrics(m))
	require.NoError(t, err)

	_, err = svc.Predict(context.Background(), request())
	require.NoError(t, err)
	_, err = svc.Predict(context.Background(), Request{})
	require.Error(t, err)

	assert.Equal(t, 1, m.ok)
	require.Len(t, m.errs, 1)
	assert.ErrorIs(t, m.errs[0], traffic.ErrMissingInput)
}

func TestPredictConcurrent(t *testing.T) {
	rd := traffic.RouteData{TravelTime: 750, TrafficTime: 800, Start: routeStart, End: routeEnd}
	svc, err := New(testArtifact(), &stubSource{rd: rd})
	require.NoError(t, err)

	want := expected(750, geo.Between(routeStart, routeEnd))
	var wg sync.WaitGroup
	results := make([]float64, 32)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := svc.Predict(context.Background(), request())
			if err == nil {
				results[i] = resp.PredictedTrafficTime
			}
		}()
	}
	wg.Wait()
	for _, got := range results {
		assert.InDelta(t, want, got, 1e-9)
	}
}

func TestDirections(t *testing.T) {
	src := &stubSource{rd: traffic.RouteData{
		TravelTime: 600, TrafficTime: 600, TravelText: "10 mins", TrafficText: "10 mins",
	}}
	svc, err := New(testArtifact(), src)
	require.NoError(t, err)

	got, err := svc.Directions(context.Background(), "A", "B")
	require.NoError(t, err)
	assert.Equal(t, DirectionsResult{Duration: "10 mins", DurationInTraffic: NotAvailable, TravelTime: 600, TrafficTime: 600}, got)

	src.rd.TrafficReported = true
	src.rd.TrafficText = "14 mins"
	src.rd.TrafficTime = 840
	got, err = svc.Directions(context.Background(), "A", "B")
	require.NoError(t, err)
	assert.Equal(t, "14 mins", got.DurationInTraffic)
	assert.Equal(t, 840.0, got.TrafficTime)

	_, err = svc.Directions(context.Background(), "", "B")
	assert.ErrorIs(t, err, traffic.ErrMissingInput)
}

func TestNewRejectsBadArtifact(t *testing.T) {
	_, err := New(nil, &stubSource{})
	assert.Error(t, err)

	a := testArtifact()
	a.Scaler.Std[2] = 0
	_, err = New(a, &stubSource{})
	assert.Error(t, err)
}
