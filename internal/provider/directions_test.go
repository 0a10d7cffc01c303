package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-predictor/internal/traffic"
)

const okWithTraffic = `{
  "status": "OK",
  "routes": [{"legs": [{
    "duration": {"value": 600, "text": "10 mins"},
    "duration_in_traffic": {"value": 840, "text": "14 mins"},
    "start_location": {"lat": 43.6532, "lng": -79.3832},
    "end_location": {"lat": 43.7001, "lng": -79.4163}
  }]}]
}`

const okWithoutTraffic = `{
  "status": "OK",
  "routes": [{"legs": [{
    "duration": {"value": 600, "text": "10 mins"},
    "start_location": {"lat": 43.6532, "lng": -79.3832},
    "end_location": {"lat": 43.7001, "lng": -79.4163}
  }]}]
}`

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func stubClient(status int, body string) *Client {
	return New("http://directions.test/json", "secret-key", time.Second, WithHTTPClient(&http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: status,
				Body:       io.NopCloser(strings.NewReader(body)),
				Header:     http.Header{},
			}, nil
		}),
	}))
}

func TestRouteWithTraffic(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = io.WriteString(w, okWithTraffic)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-key", time.Second)
	rd, err := c.Route(context.Background(), "Union Station, Toronto", "Yorkdale Mall")
	require.NoError(t, err)

	assert.Equal(t, 600.0, rd.TravelTime)
	assert.Equal(t, 840.0, rd.TrafficTime)
	assert.True(t, rd.TrafficReported)
	assert.Equal(t, "14 mins", rd.TrafficText)
	assert.Equal(t, traffic.Coordinate{Lat: 43.6532, Lng: -79.3832}, rd.Start)
	assert.Equal(t, traffic.Coordinate{Lat: 43.7001, Lng: -79.4163}, rd.End)

	require.NotNil(t, got)
	q := got.URL.Query()
	assert.Equal(t, "Union Station, Toronto", q.Get("origin"))
	assert.Equal(t, "Yorkdale Mall", q.Get("destination"))
	assert.Equal(t, "now", q.Get("departure_time"))
	assert.Equal(t, "secret-key", q.Get("key"))
}

func TestRouteTrafficFallback(t *testing.T) {
	rd, err := stubClient(http.StatusOK, okWithoutTraffic).Route(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 600.0, rd.TravelTime)
	assert.Equal(t, 600.0, rd.TrafficTime)
	assert.False(t, rd.TrafficReported)
}

func TestRouteErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"over query limit", http.StatusOK, `{"status":"OVER_QUERY_LIMIT","error_message":"quota"}`, traffic.ErrUpstreamUnavailable},
		{"request denied", http.StatusOK, `{"status":"REQUEST_DENIED"}`, traffic.ErrUpstreamUnavailable},
		{"http 503", http.StatusServiceUnavailable, `oops`, traffic.ErrUpstreamUnavailable},
		{"garbage body", http.StatusOK, `<html>`, traffic.ErrUpstreamUnavailable},
		{"zero results", http.StatusOK, `{"status":"ZERO_RESULTS","routes":[]}`, traffic.ErrNoRoute},
		{"ok without routes", http.StatusOK, `{"status":"OK","routes":[]}`, traffic.ErrNoRoute},
		{"leg without duration", http.StatusOK, `{"status":"OK","routes":[{"legs":[{}]}]}`, traffic.ErrUpstreamUnavailable},
		{"negative duration", http.StatusOK, `{"status":"OK","routes":[{"legs":[{"duration":{"value":-60},"start_location":{"lat":43.6,"lng":-79.3},"end_location":{"lat":43.7,"lng":-79.4}}]}]}`, traffic.ErrUpstreamUnavailable},
		{"negative traffic duration", http.StatusOK, `{"status":"OK","routes":[{"legs":[{"duration":{"value":60},"duration_in_traffic":{"value":-1},"start_location":{"lat":43.6,"lng":-79.3},"end_location":{"lat":43.7,"lng":-79.4}}]}]}`, traffic.ErrUpstreamUnavailable},
		{"start out of range", http.StatusOK, `{"status":"OK","routes":[{"legs":[{"duration":{"value":60},"start_location":{"lat":143.6,"lng":-79.3},"end_location":{"lat":43.7,"lng":-79.4}}]}]}`, traffic.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stubClient(tt.status, tt.body).Route(context.Background(), "a", "b")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRouteStatusIsReported(t *testing.T) {
	_, err := stubClient(http.StatusOK, `{"status":"OVER_QUERY_LIMIT","error_message":"quota"}`).Route(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OVER_QUERY_LIMIT")
	assert.False(t, errors.Is(err, traffic.ErrNoRoute))
}

func TestRouteTransportErrorRedactsKey(t *testing.T) {
	c := New("http://directions.test/json", "secret-key", time.Second, WithHTTPClient(&http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("dial failed for " + r.URL.String())
		}),
	}))
	_, err := c.Route(context.Background(), "a", "b")
	require.ErrorIs(t, err, traffic.ErrUpstreamUnavailable)
	assert.NotContains(t, err.Error(), "secret-key")
}

func TestRouteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 50*time.Millisecond)
	_, err := c.Route(context.Background(), "a", "b")
	assert.ErrorIs(t, err, traffic.ErrUpstreamUnavailable)
}

func TestRouteMissingInput(t *testing.T) {
	_, err := stubClient(http.StatusOK, okWithTraffic).Route(context.Background(), " ", "b")
	assert.ErrorIs(t, err, traffic.ErrMissingInput)
}

type recordingMetrics struct {
	calls int
	last  error
}

func (m *recordingMetrics) ProviderObserve(_ time.Duration, err error) {
	m.calls++
	m.last = err
}

func TestRouteMetrics(t *testing.T) {
	m := &recordingMetrics{}
	c := stubClient(http.StatusOK, `{"status":"UNKNOWN_ERROR"}`)
	WithMetrics(m)(c)

	_, err := c.Route(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Equal(t, 1, m.calls)
	assert.ErrorIs(t, m.last, traffic.ErrUpstreamUnavailable)
}
