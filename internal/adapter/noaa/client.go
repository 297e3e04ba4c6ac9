// Package noaa implements the historical baseline source against NOAA NCEI.
//
// Station discovery uses the CDO v2 API (token required); the normals
// themselves come from the public daily-normals CSV archive, one file per
// station. Stations are tried nearest first, skipping any whose file lacks
// the temperature normal columns, until one yields a usable row for the
// requested calendar day.
package noaa

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/climasense/weather-delta/internal/adapter/webclient"
	"github.com/climasense/weather-delta/internal/domain"
)

const (
	DefaultBaseURL    = "https://www.ncei.noaa.gov/cdo-web/api/v2"
	DefaultNormalsURL = "https://www.ncei.noaa.gov/data/normals-daily/1981-2010/access"
)

// Metric names produced by this source. They deliberately match the NWS
// names so the delta engine pairs them up.
const (
	MetricTemperatureHigh = "temperature_high"
	MetricTemperatureLow  = "temperature_low"
)

// Normals CSV columns. Values are tenths of a degree Fahrenheit.
const (
	colDate       = "DATE"
	colMaxNormal  = "DLY-TMAX-NORMAL"
	colMinNormal  = "DLY-TMIN-NORMAL"
	colMaxStddev  = "DLY-TMAX-STDDEV"
	colMinStddev  = "DLY-TMIN-STDDEV"
	missingSentry = -9999
)

// Client fetches daily climate normals from NCEI.
type Client struct {
	baseURL    string
	normalsURL string
	web        *webclient.Client
	radiusKm   float64
	logger     *slog.Logger
}

// NewClient creates an NCEI normals client. The webclient must carry the CDO
// token header; the normals archive itself is unauthenticated.
func NewClient(baseURL, normalsURL string, web *webclient.Client, radiusKm float64, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if normalsURL == "" {
		normalsURL = DefaultNormalsURL
	}
	return &Client{
		baseURL:    baseURL,
		normalsURL: normalsURL,
		web:        web,
		radiusKm:   radiusKm,
		logger:     logger,
	}
}

// FetchHistorical implements domain.HistoricalSource.
func (c *Client) FetchHistorical(ctx context.Context, coords domain.Coordinates, window domain.CalendarWindow) (domain.ObservationSet, error) {
	stations, err := c.nearbyStations(ctx, coords)
	if err != nil {
		return domain.ObservationSet{}, err
	}

	for _, station := range stations {
		metrics, err := c.normalsForStation(ctx, station.ID, window)
		if err != nil {
			var skip *skipStationError
			if errors.As(err, &skip) {
				c.logger.Debug("skipping normals station",
					"station", station.ID, "reason", skip.reason)
				continue
			}
			return domain.ObservationSet{}, err
		}

		return domain.ObservationSet{
			Kind:    domain.KindHistorical,
			Station: station,
			Window:  window,
			Metrics: metrics,
		}, nil
	}

	return domain.ObservationSet{}, &domain.NoStationError{
		Lat: coords.Lat, Lon: coords.Lon, RadiusKm: c.radiusKm,
	}
}

// nearbyStations finds NORMAL_DLY stations in a one-degree box around the
// point, sorted nearest first and filtered to the search radius.
func (c *Client) nearbyStations(ctx context.Context, coords domain.Coordinates) ([]domain.Station, error) {
	params := url.Values{
		"datasetid": {"NORMAL_DLY"},
		"extent": {fmt.Sprintf("%.4f,%.4f,%.4f,%.4f",
			coords.Lat-1, coords.Lon-1, coords.Lat+1, coords.Lon+1)},
		"limit": {"100"},
	}

	var resp stationsResponse
	u := c.baseURL + "/stations?" + params.Encode()
	if err := c.web.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("ncei station search: %w", err)
	}

	stations := make([]domain.Station, 0, len(resp.Results))
	for _, result := range resp.Results {
		distance := domain.Haversine(coords.Lat, coords.Lon, result.Latitude, result.Longitude)
		if distance > c.radiusKm {
			continue
		}
		stations = append(stations, domain.Station{
			ID:         result.ID,
			Name:       result.Name,
			DistanceKm: distance,
		})
	}
	sort.Slice(stations, func(i, j int) bool {
		return stations[i].DistanceKm < stations[j].DistanceKm
	})

	if len(stations) == 0 {
		return nil, &domain.NoStationError{
			Lat: coords.Lat, Lon: coords.Lon, RadiusKm: c.radiusKm,
		}
	}
	return stations, nil
}

// normalsForStation downloads a station's normals CSV and extracts the
// temperature normals for the window's calendar day.
func (c *Client) normalsForStation(ctx context.Context, stationID string, window domain.CalendarWindow) (map[string]domain.Metric, error) {
	body, err := c.web.Get(ctx, c.normalsFileURL(stationID))
	if err != nil {
		var statusErr *webclient.StatusError
		if errors.As(err, &statusErr) && statusErr.Status == http.StatusNotFound {
			return nil, &skipStationError{reason: "no normals file"}
		}
		return nil, fmt.Errorf("ncei normals download: %w", err)
	}
	return parseNormals(body, window)
}

// normalsFileURL maps "GHCND:USW00013874" to the archive file name, which
// drops the dataset prefix.
func (c *Client) normalsFileURL(stationID string) string {
	name := stationID
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	return c.normalsURL + "/" + name + ".csv"
}

func parseNormals(body []byte, window domain.CalendarWindow) (map[string]domain.Metric, error) {
	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read normals header: %w", err)
	}

	col := map[string]int{}
	for i, h := range header {
		col[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	if _, ok := col[colMaxNormal]; !ok {
		return nil, &skipStationError{reason: "station does not publish temperature normals"}
	}
	if _, ok := col[colDate]; !ok {
		return nil, &skipStationError{reason: "normals file has no DATE column"}
	}

	monthDay := window.MonthDay()
	for {
		row, err := reader.Read()
		if err != nil {
			break
		}
		if field(row, col, colDate) != monthDay {
			continue
		}

		high, ok := tenths(field(row, col, colMaxNormal))
		if !ok {
			return nil, &skipStationError{reason: "normal high missing for " + monthDay}
		}
		low, ok := tenths(field(row, col, colMinNormal))
		if !ok {
			return nil, &skipStationError{reason: "normal low missing for " + monthDay}
		}

		metrics := map[string]domain.Metric{
			MetricTemperatureHigh: {Value: high, Unit: "F"},
			MetricTemperatureLow:  {Value: low, Unit: "F"},
		}
		if stddev, ok := tenths(field(row, col, colMaxStddev)); ok {
			m := metrics[MetricTemperatureHigh]
			m.Stddev = stddev
			metrics[MetricTemperatureHigh] = m
		}
		if stddev, ok := tenths(field(row, col, colMinStddev)); ok {
			m := metrics[MetricTemperatureLow]
			m.Stddev = stddev
			metrics[MetricTemperatureLow] = m
		}
		return metrics, nil
	}

	return nil, &skipStationError{reason: "no row for " + monthDay}
}

func field(row []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// tenths parses an archive value in tenths of a degree. Missing values are
// empty or the -9999 sentinel.
func tenths(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v == missingSentry {
		return 0, false
	}
	return v / 10, true
}

// skipStationError marks a station as unusable so the search moves on to the
// next nearest one.
type skipStationError struct {
	reason string
}

func (e *skipStationError) Error() string {
	return "skip station: " + e.reason
}

// CDO API response types.

type stationsResponse struct {
	Results []struct {
		ID        string  `json:"id"`
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}
