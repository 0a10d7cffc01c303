// Package service serves traffic-time predictions.
//
// A Service holds one loaded artifact for its whole lifetime. Requests only
// read it, so Predict is safe for concurrent use.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"traffic-predictor/internal/features"
	"traffic-predictor/internal/geo"
	"traffic-predictor/internal/model"
	"traffic-predictor/internal/publisher"
	"traffic-predictor/internal/traffic"
)

// RecordSource tags samples recorded by the serving path.
const RecordSource = "predictor"

type RouteSource interface {
	Route(ctx context.Context, origin, destination string) (traffic.RouteData, error)
}

type Recorder interface {
	Record(ctx context.Context, s traffic.Sample) error
}

type Publisher interface {
	PublishPrediction(msg publisher.PredictionMessage) error
}

type Metrics interface {
	PredictionObserve(d time.Duration, seconds float64, err error)
}

// Request carries the route identifiers plus the caller's own coordinates.
// The caller coordinates feed the feature vector; the provider coordinates
// only feed the distance.
type Request struct {
	Origin            string
	Destination       string
	OriginCoords      *traffic.Coordinate
	DestinationCoords *traffic.Coordinate
}

type RealTimeData struct {
	TravelTime  float64 `json:"travel_time"`
	TrafficTime float64 `json:"traffic_time"`
	Distance    float64 `json:"distance"`
}

type Response struct {
	PredictionID         string       `json:"prediction_id"`
	PredictedTrafficTime float64      `json:"predicted_traffic_time"`
	RealTimeData         RealTimeData `json:"real_time_data"`
}

// DirectionsResult is the provider answer echoed without the model.
type DirectionsResult struct {
	Duration          string  `json:"duration"`
	DurationInTraffic string  `json:"duration_in_traffic"`
	TravelTime        float64 `json:"travel_time"`
	TrafficTime       float64 `json:"traffic_time"`
}

// NotAvailable is shown when the provider reported no traffic duration.
const NotAvailable = "N/A"

type Service struct {
	artifact *model.Artifact
	src      RouteSource
	log      *slog.Logger
	recorder Recorder
	pub      Publisher
	metrics  Metrics
	now      func() time.Time
}

type Option func(*Service)

func WithRecorder(r Recorder) Option   { return func(s *Service) { s.recorder = r } }
func WithPublisher(p Publisher) Option { return func(s *Service) { s.pub = p } }
func WithMetrics(m Metrics) Option     { return func(s *Service) { s.metrics = m } }
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New validates the artifact once; it is never reloaded afterwards.
func New(a *model.Artifact, src RouteSource, opts ...Option) (*Service, error) {
	if a == nil {
		return nil, errors.New("service: nil artifact")
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	s := &Service{artifact: a, src: src, log: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Origin) == "" || strings.TrimSpace(r.Destination) == "" ||
		r.OriginCoords == nil || r.DestinationCoords == nil {
		return fmt.Errorf("%w: origin, destination, and coordinates are required", traffic.ErrMissingInput)
	}
	if err := r.OriginCoords.Validate(); err != nil {
		return fmt.Errorf("originCoords: %w", err)
	}
	if err := r.DestinationCoords.Validate(); err != nil {
		return fmt.Errorf("destinationCoords: %w", err)
	}
	return nil
}

// Predict fetches live route data and runs it through the scaler and model.
func (s *Service) Predict(ctx context.Context, req Request) (resp Response, err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.PredictionObserve(time.Since(start), resp.PredictedTrafficTime, err)
		}
	}()

	if err := req.validate(); err != nil {
		return Response{}, err
	}
	rd, err := s.src.Route(ctx, req.Origin, req.Destination)
	if err != nil {
		return Response{}, err
	}
	if err := rd.Validate(); err != nil {
		return Response{}, err
	}
	distance := geo.Between(rd.Start, rd.End)

	v, err := features.Build(traffic.Observation{
		Origin:      req.OriginCoords,
		Destination: req.DestinationCoords,
		TravelTime:  traffic.Seconds(rd.TravelTime),
		TrafficTime: traffic.Seconds(rd.TrafficTime),
		Distance:    distance,
	})
	if err != nil {
		return Response{}, err
	}
	predicted, err := s.artifact.Predict(v)
	if err != nil {
		return Response{}, err
	}

	resp = Response{
		PredictionID:         uuid.NewString(),
		PredictedTrafficTime: predicted,
		RealTimeData: RealTimeData{
			TravelTime:  rd.TravelTime,
			TrafficTime: rd.TrafficTime,
			Distance:    distance,
		},
	}
	s.emit(ctx, req, rd, resp)
	return resp, nil
}

// emit hands the served observation to the optional sinks. Their failures
// are logged and never reach the caller.
func (s *Service) emit(ctx context.Context, req Request, rd traffic.RouteData, resp Response) {
	now := s.now()
	if s.recorder != nil {
		sample := traffic.Sample{
			Timestamp:   now,
			Origin:      req.Origin,
			Destination: req.Destination,
			Start:       rd.Start,
			End:         rd.End,
			TravelTime:  rd.TravelTime,
			TrafficTime: rd.TrafficTime,
			Hour:        now.Hour(),
			DayOfWeek:   traffic.WeekdayIndex(now),
			Distance:    resp.RealTimeData.Distance,
		}
		if err := s.recorder.Record(ctx, sample); err != nil {
			s.log.Warn("record prediction sample", "prediction_id", resp.PredictionID, "error", err)
		}
	}
	if s.pub != nil {
		err := s.pub.PublishPrediction(publisher.PredictionMessage{
			ID:                   resp.PredictionID,
			Timestamp:            now,
			Origin:               req.Origin,
			Destination:          req.Destination,
			TravelTime:           rd.TravelTime,
			TrafficTime:          rd.TrafficTime,
			DistanceKm:           resp.RealTimeData.Distance,
			PredictedTrafficTime: resp.PredictedTrafficTime,
		})
		if err != nil {
			s.log.Warn("publish prediction", "prediction_id", resp.PredictionID, "error", err)
		}
	}
}

// Directions echoes the provider durations. The model is not consulted.
func (s *Service) Directions(ctx context.Context, origin, destination string) (DirectionsResult, error) {
	if strings.TrimSpace(origin) == "" || strings.TrimSpace(destination) == "" {
		return DirectionsResult{}, fmt.Errorf("%w: origin and destination are required", traffic.ErrMissingInput)
	}
	rd, err := s.src.Route(ctx, origin, destination)
	if err != nil {
		return DirectionsResult{}, err
	}
	if err := rd.Validate(); err != nil {
		return DirectionsResult{}, err
	}
	out := DirectionsResult{
		Duration:          rd.TravelText,
		DurationInTraffic: NotAvailable,
		TravelTime:        rd.TravelTime,
		TrafficTime:       rd.TrafficTime,
	}
	if rd.TrafficReported {
		out.DurationInTraffic = rd.TrafficText
	}
	return out, nil
}
