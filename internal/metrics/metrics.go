package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"traffic-predictor/internal/traffic"
)

// Collector owns a private registry. A nil *Collector is valid and records nothing,
// so it can be handed to components when metrics are disabled.
type Collector struct {
	reg *prometheus.Registry

	Predictions      prometheus.Counter
	PredictionErrors *prometheus.CounterVec // kind label, see traffic.Kind
	PredictedSeconds prometheus.Histogram
	PredictDuration  prometheus.Histogram

	ProviderDuration prometheus.Histogram
	ProviderErrors   *prometheus.CounterVec // kind label

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	ObservationsCollected prometheus.Counter
	ObservationsFailed    *prometheus.CounterVec // stage label: provider|csv|db|publish
	CollectPassDuration   prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Predictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "traffic_predictions_total",
			Help: "Total successful traffic-time predictions.",
		}),
		PredictionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traffic_prediction_errors_total",
			Help: "Failed predictions by error kind.",
		}, []string{"kind"}),
		PredictedSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "traffic_predicted_seconds",
			Help:    "Distribution of predicted traffic times.",
			Buckets: prometheus.ExponentialBuckets(60, 1.5, 14),
		}),
		PredictDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "traffic_predict_duration_seconds",
			Help:    "End-to-end latency of a prediction request, provider call included.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		ProviderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "traffic_provider_request_duration_seconds",
			Help:    "Latency of directions provider calls.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traffic_provider_errors_total",
			Help: "Directions provider failures by error kind.",
		}, []string{"kind"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "traffic_route_cache_hits_total",
			Help: "Route lookups served from the cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "traffic_route_cache_misses_total",
			Help: "Route lookups that went to the provider.",
		}),
		ObservationsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "traffic_observations_collected_total",
			Help: "Observations appended to the historical log.",
		}),
		ObservationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traffic_observations_failed_total",
			Help: "Collection failures by stage.",
		}, []string{"stage"}),
		CollectPassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "traffic_collect_pass_duration_seconds",
			Help:    "Duration of one collection pass over all routes.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "traffic_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "traffic_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traffic_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "traffic_publish_duration_seconds",
			Help:    "Time spent in NATS publish calls.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	reg.MustRegister(
		c.Predictions, c.PredictionErrors, c.PredictedSeconds, c.PredictDuration,
		c.ProviderDuration, c.ProviderErrors,
		c.CacheHits, c.CacheMisses,
		c.ObservationsCollected, c.ObservationsFailed, c.CollectPassDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()
	log.Info("metrics listening", "addr", addr)
	return srv
}

func (c *Collector) PredictionObserve(d time.Duration, seconds float64, err error) {
	if c == nil {
		return
	}
	c.PredictDuration.Observe(d.Seconds())
	if err != nil {
		c.PredictionErrors.WithLabelValues(traffic.Kind(err)).Inc()
		return
	}
	c.Predictions.Inc()
	c.PredictedSeconds.Observe(seconds)
}

func (c *Collector) ProviderObserve(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.ProviderDuration.Observe(d.Seconds())
	if err != nil {
		c.ProviderErrors.WithLabelValues(traffic.Kind(err)).Inc()
	}
}

func (c *Collector) CacheHitInc() {
	if c != nil {
		c.CacheHits.Inc()
	}
}

func (c *Collector) CacheMissInc() {
	if c != nil {
		c.CacheMisses.Inc()
	}
}

func (c *Collector) ObservationCollected() {
	if c != nil {
		c.ObservationsCollected.Inc()
	}
}

func (c *Collector) ObservationFailed(stage string) {
	if c != nil {
		c.ObservationsFailed.WithLabelValues(stage).Inc()
	}
}

func (c *Collector) CollectPassObserve(d time.Duration) {
	if c != nil {
		c.CollectPassDuration.Observe(d.Seconds())
	}
}

func (c *Collector) NATSPublishedInc() {
	if c != nil {
		c.NATSPublished.Inc()
	}
}

func (c *Collector) NATSPublishErrInc() {
	if c != nil {
		c.NATSPublishErrs.Inc()
	}
}

func (c *Collector) PublishObserve(d time.Duration) {
	if c != nil {
		c.PublishDuration.Observe(d.Seconds())
	}
}

func (c *Collector) NATSSetConnected(b bool) {
	if c == nil {
		return
	}
	if b {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
