package nws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climasense/weather-delta/internal/adapter/webclient"
	"github.com/climasense/weather-delta/internal/domain"
	"github.com/climasense/weather-delta/internal/observability"
)

// fixture simulates the four NWS endpoints a fetch walks through. By default
// it serves a single KATL station; extraStations prepends entries so tests
// can exercise the skip-to-next-station path, with per-station observation
// payloads in observations (an empty payload serves a 404).
type fixture struct {
	server *httptest.Server

	stationLat, stationLon float64
	extraStations          []string
	observations           map[string]string
	observation            string
	forecast               string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		stationLat:   33.7781,
		stationLon:   -84.5214,
		observations: map[string]string{},
		observation: `{"properties": {
			"timestamp": "2025-07-04T15:52:00+00:00",
			"textDescription": "Partly Cloudy",
			"temperature": {"unitCode": "wmoUnit:degC", "value": 29.4},
			"maxTemperatureLast24Hours": {"unitCode": "wmoUnit:degC", "value": 31.1},
			"minTemperatureLast24Hours": {"unitCode": "wmoUnit:degC", "value": 21.7},
			"windSpeed": {"unitCode": "wmoUnit:km_h-1", "value": 14.8}
		}}`,
		forecast: `{"properties": {"periods": [
			{"name": "Today", "temperature": 90, "isDaytime": true},
			{"name": "Tonight", "temperature": 70, "isDaytime": false}
		]}}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/points/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"properties": {
			"observationStations": "%s/gridpoints/FFC/51,87/stations",
			"forecast": "%s/gridpoints/FFC/51,87/forecast",
			"relativeLocation": {"properties": {"city": "Atlanta", "state": "GA"}}
		}}`, f.server.URL, f.server.URL)
	})
	mux.HandleFunc("/gridpoints/FFC/51,87/stations", func(w http.ResponseWriter, _ *http.Request) {
		features := append([]string{}, f.extraStations...)
		features = append(features, fmt.Sprintf(`
			{"geometry": {"coordinates": [%f, %f]},
			 "properties": {"stationIdentifier": "KATL", "name": "Hartsfield Jackson Atlanta Intl"}}`,
			f.stationLon, f.stationLat))
		fmt.Fprintf(w, `{"features": [%s]}`, strings.Join(features, ","))
	})
	mux.HandleFunc("/stations/", func(w http.ResponseWriter, r *http.Request) {
		// Path shape: /stations/{id}/observations/latest
		id := strings.Split(strings.TrimPrefix(r.URL.Path, "/stations/"), "/")[0]
		if payload, ok := f.observations[id]; ok {
			if payload == "" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = io.WriteString(w, payload)
			return
		}
		if id == "KATL" {
			_, _ = io.WriteString(w, f.observation)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/gridpoints/FFC/51,87/forecast", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, f.forecast)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// nearbyStation renders a station feature a few hundred metres from the
// default test query point.
func nearbyStation(id string) string {
	return fmt.Sprintf(`
		{"geometry": {"coordinates": [-84.3500, 33.7850]},
		 "properties": {"stationIdentifier": %q, "name": "Test Station"}}`, id)
}

func (f *fixture) client(radiusKm float64) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	web := webclient.New("nws", 2*time.Second, logger, observability.NewMetricsForTesting())
	return NewClient(f.server.URL, web, radiusKm, logger)
}

var atlanta = domain.Coordinates{Lat: 33.7845, Lon: -84.3512, Label: "Atlanta, GA"}

func TestFetchCurrent(t *testing.T) {
	f := newFixture(t)

	set, err := f.client(50).FetchCurrent(context.Background(), atlanta)
	require.NoError(t, err)

	assert.Equal(t, domain.KindCurrent, set.Kind)
	assert.Equal(t, "KATL", set.Station.ID)
	assert.Greater(t, set.Station.DistanceKm, 0.0)
	assert.Less(t, set.Station.DistanceKm, 50.0)
	assert.Equal(t, time.Date(2025, 7, 4, 15, 52, 0, 0, time.UTC), set.ObservedAt)

	// 29.4C is 84.92F.
	assert.InDelta(t, 84.92, set.Metrics[MetricTemperature].Value, 0.01)
	assert.Equal(t, "F", set.Metrics[MetricTemperature].Unit)

	// Forecast high 90F beats the observed 24h max of 31.1C (88.0F).
	assert.InDelta(t, 90.0, set.Metrics[MetricTemperatureHigh].Value, 0.01)
	// Forecast low 70F loses to the observed 24h min of 21.7C (71.1F).
	assert.InDelta(t, 70.0, set.Metrics[MetricTemperatureLow].Value, 0.01)

	assert.InDelta(t, 14.8, set.Metrics[MetricWindSpeed].Value, 0.01)
	assert.Equal(t, "km/h", set.Metrics[MetricWindSpeed].Unit)
}

func TestFetchCurrent_Missing24HourExtremes(t *testing.T) {
	f := newFixture(t)
	f.observation = `{"properties": {
		"timestamp": "2025-07-04T15:52:00+00:00",
		"temperature": {"value": 20.0},
		"maxTemperatureLast24Hours": {"value": null},
		"minTemperatureLast24Hours": {"value": null},
		"windSpeed": {"value": null}
	}}`
	f.forecast = `{"properties": {"periods": [
		{"name": "Today", "temperature": 75, "isDaytime": true},
		{"name": "Tonight", "temperature": 55, "isDaytime": false}
	]}}`

	set, err := f.client(50).FetchCurrent(context.Background(), atlanta)
	require.NoError(t, err)

	// 20C is 68F; the forecast alone supplies the extremes.
	assert.InDelta(t, 68.0, set.Metrics[MetricTemperature].Value, 0.01)
	assert.InDelta(t, 75.0, set.Metrics[MetricTemperatureHigh].Value, 0.01)
	assert.InDelta(t, 55.0, set.Metrics[MetricTemperatureLow].Value, 0.01)

	_, hasWind := set.Metrics[MetricWindSpeed]
	assert.False(t, hasWind, "null wind speed should omit the metric")
}

func TestFetchCurrent_ObservedExtremesBeatForecast(t *testing.T) {
	f := newFixture(t)
	// 37.8C is 100F observed max; forecast high is only 90F.
	f.observation = `{"properties": {
		"temperature": {"value": 35.0},
		"maxTemperatureLast24Hours": {"value": 37.8},
		"minTemperatureLast24Hours": {"value": 10.0},
		"windSpeed": {"value": 5.0}
	}}`

	set, err := f.client(50).FetchCurrent(context.Background(), atlanta)
	require.NoError(t, err)

	assert.InDelta(t, 100.04, set.Metrics[MetricTemperatureHigh].Value, 0.01)
	// 10C is 50F observed min, below the 70F forecast low.
	assert.InDelta(t, 50.0, set.Metrics[MetricTemperatureLow].Value, 0.01)
}

func TestFetchCurrent_StationOutOfRange(t *testing.T) {
	f := newFixture(t)
	// Station in Alaska while the query is in Georgia.
	f.stationLat, f.stationLon = 61.17, -149.99

	_, err := f.client(50).FetchCurrent(context.Background(), atlanta)
	require.Error(t, err)

	var noStation *domain.NoStationError
	require.True(t, errors.As(err, &noStation))
	assert.InDelta(t, 50.0, noStation.RadiusKm, 0.001)
}

func TestFetchCurrent_NightForecastOrdering(t *testing.T) {
	f := newFixture(t)
	// After sunset the nighttime period leads; high and low must not swap.
	f.forecast = `{"properties": {"periods": [
		{"name": "Tonight", "temperature": 70, "isDaytime": false},
		{"name": "Saturday", "temperature": 91, "isDaytime": true}
	]}}`

	set, err := f.client(50).FetchCurrent(context.Background(), atlanta)
	require.NoError(t, err)

	assert.InDelta(t, 91.0, set.Metrics[MetricTemperatureHigh].Value, 0.01)
	assert.InDelta(t, 70.0, set.Metrics[MetricTemperatureLow].Value, 0.01)
}

func TestFetchCurrent_SkipsStationWithoutTemperature(t *testing.T) {
	f := newFixture(t)
	f.extraStations = []string{nearbyStation("KBAD")}
	f.observations["KBAD"] = `{"properties": {"temperature": {"value": null}}}`

	set, err := f.client(50).FetchCurrent(context.Background(), atlanta)
	require.NoError(t, err)
	assert.Equal(t, "KATL", set.Station.ID, "a station without temperature should be skipped")
}

func TestFetchCurrent_SkipsStationWithoutObservation(t *testing.T) {
	f := newFixture(t)
	f.extraStations = []string{nearbyStation("KGONE")}
	f.observations["KGONE"] = "" // latest observation serves 404

	set, err := f.client(50).FetchCurrent(context.Background(), atlanta)
	require.NoError(t, err)
	assert.Equal(t, "KATL", set.Station.ID)
}

func TestFetchCurrent_AllStationsUnusable(t *testing.T) {
	f := newFixture(t)
	f.observation = `{"properties": {"temperature": {"value": null}}}`

	_, err := f.client(50).FetchCurrent(context.Background(), atlanta)
	require.Error(t, err)

	var noStation *domain.NoStationError
	require.True(t, errors.As(err, &noStation), "no usable observation anywhere should be NoStationError, got %v", err)
}

func TestFetchCurrent_UpstreamDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	web := webclient.New("nws", time.Second, logger, observability.NewMetricsForTesting())
	client := NewClient(server.URL, web, 50, logger)

	_, err := client.FetchCurrent(context.Background(), atlanta)
	var unavailable *domain.UpstreamUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "nws", unavailable.Provider)
}
