package publisher

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"traffic-predictor/internal/traffic"
)

type NATSPublisher struct {
	nc      *nats.Conn
	prefix  string
	log     *slog.Logger
	metrics PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, log *slog.Logger, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("traffic-predictor"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix, log: log, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

const DefaultPrefix = "traffic"

// ObservationMessage is emitted once per collected route sample.
type ObservationMessage struct {
	ID          string             `json:"id"`
	Timestamp   time.Time          `json:"timestamp"`
	Origin      string             `json:"origin"`
	Destination string             `json:"destination"`
	Start       traffic.Coordinate `json:"start"`
	End         traffic.Coordinate `json:"end"`
	TravelTime  float64            `json:"travelTime"`
	TrafficTime float64            `json:"trafficTime"`
	Hour        int                `json:"hour"`
	DayOfWeek   int                `json:"dayOfWeek"`
	DistanceKm  float64            `json:"distanceKm"`
}

func NewObservationMessage(s traffic.Sample) ObservationMessage {
	return ObservationMessage{
		ID:          uuid.NewString(),
		Timestamp:   s.Timestamp,
		Origin:      s.Origin,
		Destination: s.Destination,
		Start:       s.Start,
		End:         s.End,
		TravelTime:  s.TravelTime,
		TrafficTime: s.TrafficTime,
		Hour:        s.Hour,
		DayOfWeek:   s.DayOfWeek,
		DistanceKm:  s.Distance,
	}
}

// PredictionMessage is emitted for every successful prediction. ID matches the
// prediction id returned to the caller.
type PredictionMessage struct {
	ID                   string    `json:"id"`
	Timestamp            time.Time `json:"timestamp"`
	Origin               string    `json:"origin"`
	Destination          string    `json:"destination"`
	TravelTime           float64   `json:"travelTime"`
	TrafficTime          float64   `json:"trafficTime"`
	DistanceKm           float64   `json:"distanceKm"`
	PredictedTrafficTime float64   `json:"predictedTrafficTime"`
}

func (p *NATSPublisher) PublishObservation(msg ObservationMessage) error {
	return p.publish(Subject(p.prefix, "observations", msg.Origin, msg.Destination), msg)
}

func (p *NATSPublisher) PublishPrediction(msg PredictionMessage) error {
	return p.publish(Subject(p.prefix, "predictions", msg.Origin, msg.Destination), msg)
}

func (p *NATSPublisher) publish(subject string, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.log.Debug("nats publish", "subject", subject)
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// Subject builds "<prefix>.<kind>.<origin>.<destination>" with each free-text
// part reduced to a single NATS token.
func Subject(prefix, kind, origin, destination string) string {
	return strings.Join([]string{prefix, kind, subjectToken(origin), subjectToken(destination)}, ".")
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_", ",", "")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
