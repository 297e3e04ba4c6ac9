// Package nws implements the current-conditions source against the National
// Weather Service API (api.weather.gov).
//
// A fetch is three hops: /points/{lat},{lon} returns the station list and
// forecast URLs for the grid cell, the station list gives the nearest
// observing station, and that station's latest observation supplies the
// readings. The forecast fills in today's high and low, reconciled against
// the last 24 hours of observations.
package nws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/climasense/weather-delta/internal/adapter/webclient"
	"github.com/climasense/weather-delta/internal/domain"
)

const DefaultBaseURL = "https://api.weather.gov"

// Metric names produced by this source.
const (
	MetricTemperature     = "temperature"
	MetricTemperatureHigh = "temperature_high"
	MetricTemperatureLow  = "temperature_low"
	MetricWindSpeed       = "wind_speed"
)

// Client fetches current conditions from the NWS API.
type Client struct {
	baseURL  string
	web      *webclient.Client
	radiusKm float64
	logger   *slog.Logger
}

// NewClient creates an NWS client. radiusKm bounds how far the observing
// station may be from the query point.
func NewClient(baseURL string, web *webclient.Client, radiusKm float64, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: baseURL, web: web, radiusKm: radiusKm, logger: logger}
}

// FetchCurrent implements domain.CurrentSource. Stations are tried in the
// API's proximity order; one whose latest observation is missing or lacks a
// temperature is skipped, matching how the normals source walks its station
// list.
func (c *Client) FetchCurrent(ctx context.Context, coords domain.Coordinates) (domain.ObservationSet, error) {
	point, err := c.lookupPoint(ctx, coords)
	if err != nil {
		return domain.ObservationSet{}, err
	}

	stations, err := c.stationsInRange(ctx, point.Properties.ObservationStations, coords)
	if err != nil {
		return domain.ObservationSet{}, err
	}

	forecast, err := c.todayForecast(ctx, point.Properties.Forecast)
	if err != nil {
		return domain.ObservationSet{}, err
	}

	for _, station := range stations {
		obs, err := c.latestObservation(ctx, station.ID)
		if err != nil {
			var statusErr *webclient.StatusError
			if errors.As(err, &statusErr) {
				c.logger.Debug("skipping station without a latest observation",
					"station", station.ID, "status", statusErr.Status)
				continue
			}
			return domain.ObservationSet{}, err
		}
		if obs.Temperature.Value == nil {
			c.logger.Debug("skipping station observation without temperature",
				"station", station.ID)
			continue
		}
		return c.buildSet(station, obs, forecast), nil
	}

	return domain.ObservationSet{}, &domain.NoStationError{
		Lat: coords.Lat, Lon: coords.Lon, RadiusKm: c.radiusKm,
	}
}

func (c *Client) lookupPoint(ctx context.Context, coords domain.Coordinates) (pointResponse, error) {
	var point pointResponse
	u := fmt.Sprintf("%s/points/%.4f,%.4f", c.baseURL, coords.Lat, coords.Lon)
	if err := c.web.GetJSON(ctx, u, &point); err != nil {
		return pointResponse{}, fmt.Errorf("nws point lookup: %w", err)
	}
	if point.Properties.ObservationStations == "" || point.Properties.Forecast == "" {
		return pointResponse{}, &domain.NoStationError{
			Lat: coords.Lat, Lon: coords.Lon, RadiusKm: c.radiusKm,
		}
	}
	return point, nil
}

// stationsInRange returns the listed stations within the search radius,
// keeping the API's proximity order.
func (c *Client) stationsInRange(ctx context.Context, stationsURL string, coords domain.Coordinates) ([]domain.Station, error) {
	var stations stationsResponse
	if err := c.web.GetJSON(ctx, stationsURL, &stations); err != nil {
		return nil, fmt.Errorf("nws station list: %w", err)
	}

	inRange := make([]domain.Station, 0, len(stations.Features))
	for _, feature := range stations.Features {
		if len(feature.Geometry.Coordinates) != 2 {
			continue
		}
		lon, lat := feature.Geometry.Coordinates[0], feature.Geometry.Coordinates[1]
		distance := domain.Haversine(coords.Lat, coords.Lon, lat, lon)
		if distance > c.radiusKm {
			continue
		}
		inRange = append(inRange, domain.Station{
			ID:         feature.Properties.StationIdentifier,
			Name:       feature.Properties.Name,
			DistanceKm: distance,
		})
	}
	return inRange, nil
}

func (c *Client) latestObservation(ctx context.Context, stationID string) (observationProperties, error) {
	var obs observationResponse
	u := fmt.Sprintf("%s/stations/%s/observations/latest", c.baseURL, stationID)
	if err := c.web.GetJSON(ctx, u, &obs); err != nil {
		return observationProperties{}, fmt.Errorf("nws latest observation: %w", err)
	}
	return obs.Properties, nil
}

// todayForecast reads the two leading forecast periods, which cover the rest
// of the day. The daytime period carries the high and the nighttime one the
// low; after sunset the nighttime period comes first.
func (c *Client) todayForecast(ctx context.Context, forecastURL string) (forecastTemps, error) {
	var forecast forecastResponse
	if err := c.web.GetJSON(ctx, forecastURL, &forecast); err != nil {
		return forecastTemps{}, fmt.Errorf("nws forecast: %w", err)
	}

	var temps forecastTemps
	periods := forecast.Properties.Periods
	if len(periods) > 2 {
		periods = periods[:2]
	}
	for _, period := range periods {
		if period.IsDaytime && temps.High == nil {
			temps.High = &period.Temperature
		}
		if !period.IsDaytime && temps.Low == nil {
			temps.Low = &period.Temperature
		}
	}
	return temps, nil
}

// buildSet assembles the observation set. The caller guarantees a non-nil
// temperature.
func (c *Client) buildSet(station domain.Station, obs observationProperties, forecast forecastTemps) domain.ObservationSet {
	currentF := cToF(*obs.Temperature.Value)

	// Observed extremes over the last 24 hours; stations that do not report
	// them fall back to the current reading.
	maxF := currentF
	if obs.MaxTemperatureLast24Hours.Value != nil {
		maxF = cToF(*obs.MaxTemperatureLast24Hours.Value)
	}
	minF := currentF
	if obs.MinTemperatureLast24Hours.Value != nil {
		minF = cToF(*obs.MinTemperatureLast24Hours.Value)
	}

	// The day's high is the larger of the forecast high and anything already
	// observed; symmetric for the low.
	highF := maxF
	if forecast.High != nil {
		highF = math.Max(highF, float64(*forecast.High))
	}
	lowF := minF
	if forecast.Low != nil {
		lowF = math.Min(lowF, float64(*forecast.Low))
	}

	metrics := map[string]domain.Metric{
		MetricTemperature:     {Value: currentF, Unit: "F"},
		MetricTemperatureHigh: {Value: highF, Unit: "F"},
		MetricTemperatureLow:  {Value: lowF, Unit: "F"},
	}
	if obs.WindSpeed.Value != nil {
		metrics[MetricWindSpeed] = domain.Metric{Value: *obs.WindSpeed.Value, Unit: "km/h"}
	}

	observedAt := domain.Now().UTC()
	if obs.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, obs.Timestamp); err == nil {
			observedAt = ts.UTC()
		} else {
			c.logger.Warn("unparseable observation timestamp",
				"station", station.ID, "timestamp", obs.Timestamp)
		}
	}

	return domain.ObservationSet{
		Kind:       domain.KindCurrent,
		Station:    station,
		ObservedAt: observedAt,
		Metrics:    metrics,
	}
}

// cToF converts Celsius readings to Fahrenheit; NWS observations are metric
// while forecasts and normals are Fahrenheit.
func cToF(c float64) float64 {
	return c*9/5 + 32
}

// NWS API response types.

type pointResponse struct {
	Properties struct {
		ObservationStations string `json:"observationStations"`
		Forecast            string `json:"forecast"`
		RelativeLocation    struct {
			Properties struct {
				City  string `json:"city"`
				State string `json:"state"`
			} `json:"properties"`
		} `json:"relativeLocation"`
	} `json:"properties"`
}

type stationsResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
		Properties struct {
			StationIdentifier string `json:"stationIdentifier"`
			Name              string `json:"name"`
		} `json:"properties"`
	} `json:"features"`
}

type observationResponse struct {
	Properties observationProperties `json:"properties"`
}

type observationProperties struct {
	Timestamp                 string        `json:"timestamp"`
	TextDescription           string        `json:"textDescription"`
	Temperature               quantityValue `json:"temperature"`
	MaxTemperatureLast24Hours quantityValue `json:"maxTemperatureLast24Hours"`
	MinTemperatureLast24Hours quantityValue `json:"minTemperatureLast24Hours"`
	WindSpeed                 quantityValue `json:"windSpeed"`
}

// quantityValue is the NWS quantitative-value shape; Value is null when the
// station does not report the measurement.
type quantityValue struct {
	Value *float64 `json:"value"`
	Unit  string   `json:"unitCode"`
}

type forecastResponse struct {
	Properties struct {
		Periods []struct {
			Temperature int  `json:"temperature"`
			IsDaytime   bool `json:"isDaytime"`
		} `json:"periods"`
	} `json:"properties"`
}

type forecastTemps struct {
	High *int
	Low  *int
}
