// Package provider adapts the Directions web service into RouteData.
//
// It owns the traffic-time fallback: when the service omits
// duration_in_traffic, the free-flow duration is used in its place.
// Calls are bounded by the client timeout and never retried here.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"traffic-predictor/internal/traffic"
)

// DefaultURL is the Directions JSON endpoint.
const DefaultURL = "https://maps.googleapis.com/maps/api/directions/json"

// Metrics receives one observation per provider call. Optional.
type Metrics interface {
	ProviderObserve(d time.Duration, err error)
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	metrics Metrics
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout is kept as-is.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithMetrics(m Metrics) Option { return func(c *Client) { c.metrics = m } }

func New(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type value struct {
	Value float64 `json:"value"`
	Text  string  `json:"text"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		Legs []struct {
			Duration          *value  `json:"duration"`
			DurationInTraffic *value  `json:"duration_in_traffic"`
			StartLocation     *latLng `json:"start_location"`
			EndLocation       *latLng `json:"end_location"`
		} `json:"legs"`
	} `json:"routes"`
}

// Route fetches the current route between two place identifiers (addresses,
// place ids or "lat,lng" strings).
func (c *Client) Route(ctx context.Context, origin, destination string) (rd traffic.RouteData, err error) {
	origin, destination = strings.TrimSpace(origin), strings.TrimSpace(destination)
	if origin == "" || destination == "" {
		return traffic.RouteData{}, fmt.Errorf("%w: origin and destination", traffic.ErrMissingInput)
	}
	if c.metrics != nil {
		start := time.Now()
		defer func() { c.metrics.ProviderObserve(time.Since(start), err) }()
	}

	params := url.Values{}
	params.Set("origin", origin)
	params.Set("destination", destination)
	params.Set("departure_time", "now")
	params.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return traffic.RouteData{}, fmt.Errorf("build directions request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return traffic.RouteData{}, fmt.Errorf("%w: %v", traffic.ErrUpstreamUnavailable, redact(err, c.apiKey))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return traffic.RouteData{}, fmt.Errorf("%w: http status %d", traffic.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var out directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return traffic.RouteData{}, fmt.Errorf("%w: decode response: %v", traffic.ErrUpstreamUnavailable, err)
	}
	return adapt(out)
}

func adapt(out directionsResponse) (traffic.RouteData, error) {
	switch out.Status {
	case "OK":
	case "ZERO_RESULTS", "NOT_FOUND":
		return traffic.RouteData{}, fmt.Errorf("%w: provider status %s", traffic.ErrNoRoute, out.Status)
	default:
		msg := out.Status
		if out.ErrorMessage != "" {
			msg += " (" + out.ErrorMessage + ")"
		}
		return traffic.RouteData{}, fmt.Errorf("%w: provider status %s", traffic.ErrUpstreamUnavailable, msg)
	}
	if len(out.Routes) == 0 || len(out.Routes[0].Legs) == 0 {
		return traffic.RouteData{}, fmt.Errorf("%w: empty route list", traffic.ErrNoRoute)
	}
	leg := out.Routes[0].Legs[0]
	if leg.Duration == nil || leg.StartLocation == nil || leg.EndLocation == nil {
		return traffic.RouteData{}, fmt.Errorf("%w: route leg lacks duration or endpoints", traffic.ErrUpstreamUnavailable)
	}

	rd := traffic.RouteData{
		TravelTime:  leg.Duration.Value,
		TrafficTime: leg.Duration.Value,
		TravelText:  leg.Duration.Text,
		TrafficText: leg.Duration.Text,
		Start:       traffic.Coordinate{Lat: leg.StartLocation.Lat, Lng: leg.StartLocation.Lng},
		End:         traffic.Coordinate{Lat: leg.EndLocation.Lat, Lng: leg.EndLocation.Lng},
	}
	if leg.DurationInTraffic != nil {
		rd.TrafficTime = leg.DurationInTraffic.Value
		rd.TrafficText = leg.DurationInTraffic.Text
		rd.TrafficReported = true
	}
	if err := rd.Validate(); err != nil {
		return traffic.RouteData{}, err
	}
	return rd, nil
}

// redact strips the API key from transport errors, which embed the request URL.
func redact(err error, key string) string {
	s := err.Error()
	if key != "" {
		s = strings.ReplaceAll(s, url.QueryEscape(key), "REDACTED")
	}
	return s
}
