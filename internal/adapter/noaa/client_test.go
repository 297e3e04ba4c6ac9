package noaa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climasense/weather-delta/internal/adapter/webclient"
	"github.com/climasense/weather-delta/internal/domain"
	"github.com/climasense/weather-delta/internal/observability"
)

var atlanta = domain.Coordinates{Lat: 33.7845, Lon: -84.3512, Label: "Atlanta, GA"}

var julyFourth = domain.CalendarWindow{Month: time.July, Day: 4, PeriodStart: 1981, PeriodEnd: 2010}

// Airport station roughly 16 km from the query point, plus a closer downtown
// station used in the skip tests.
const stationsPayload = `{
	"metadata": {"resultset": {"count": 2, "limit": 100}},
	"results": [
		{"id": "GHCND:USW00013874", "name": "ATLANTA HARTSFIELD INTL AP, GA US",
		 "latitude": 33.6301, "longitude": -84.4418},
		{"id": "GHCND:USW00053863", "name": "ATLANTA DOWNTOWN, GA US",
		 "latitude": 33.7795, "longitude": -84.3963}
	]
}`

const airportCSV = `STATION,DATE,DLY-TMAX-NORMAL,DLY-TMAX-STDDEV,DLY-TMIN-NORMAL,DLY-TMIN-STDDEV
USW00013874,07-03,888,25,717,18
USW00013874,07-04,891,26,719,19
USW00013874,07-05,892,27,720,20
`

// Downtown file lacks the temperature normal columns entirely.
const downtownCSV = `STATION,DATE,DLY-PRCP-50PCTL
USW00053863,07-04,12
`

type fixture struct {
	stations    string
	airportCSV  string
	downtownCSV string
	tokens      []string
}

func (f *fixture) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/cdo/stations", func(w http.ResponseWriter, r *http.Request) {
		f.tokens = append(f.tokens, r.Header.Get("token"))
		_, _ = io.WriteString(w, f.stations)
	})
	mux.HandleFunc("/normals/USW00013874.csv", func(w http.ResponseWriter, _ *http.Request) {
		if f.airportCSV == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, f.airportCSV)
	})
	mux.HandleFunc("/normals/USW00053863.csv", func(w http.ResponseWriter, _ *http.Request) {
		if f.downtownCSV == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, f.downtownCSV)
	})
	return mux
}

func newClient(t *testing.T, f *fixture, radiusKm float64) *Client {
	t.Helper()
	server := httptest.NewServer(f.handler())
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	web := webclient.New("noaa", 2*time.Second, logger, observability.NewMetricsForTesting(),
		webclient.WithHeader("token", "test-token"))
	return NewClient(server.URL+"/cdo", server.URL+"/normals", web, radiusKm, logger)
}

func TestFetchHistorical(t *testing.T) {
	f := &fixture{stations: stationsPayload, airportCSV: airportCSV, downtownCSV: downtownCSV}
	client := newClient(t, f, 50)

	set, err := client.FetchHistorical(context.Background(), atlanta, julyFourth)
	require.NoError(t, err)

	assert.Equal(t, domain.KindHistorical, set.Kind)
	assert.Equal(t, julyFourth, set.Window)

	// Downtown is nearer but publishes no temperature normals; the airport
	// station wins.
	assert.Equal(t, "GHCND:USW00013874", set.Station.ID)
	assert.Greater(t, set.Station.DistanceKm, 0.0)

	high := set.Metrics[MetricTemperatureHigh]
	assert.InDelta(t, 89.1, high.Value, 0.001)
	assert.Equal(t, "F", high.Unit)
	assert.InDelta(t, 2.6, high.Stddev, 0.001)

	low := set.Metrics[MetricTemperatureLow]
	assert.InDelta(t, 71.9, low.Value, 0.001)
	assert.InDelta(t, 1.9, low.Stddev, 0.001)

	require.NotEmpty(t, f.tokens)
	assert.Equal(t, "test-token", f.tokens[0])
}

func TestFetchHistorical_NearestUsableStationFirst(t *testing.T) {
	// Give downtown a usable file; being nearer, it must now win.
	downtown := `STATION,DATE,DLY-TMAX-NORMAL,DLY-TMIN-NORMAL
USW00053863,07-04,905,730
`
	f := &fixture{stations: stationsPayload, airportCSV: airportCSV, downtownCSV: downtown}
	client := newClient(t, f, 50)

	set, err := client.FetchHistorical(context.Background(), atlanta, julyFourth)
	require.NoError(t, err)

	assert.Equal(t, "GHCND:USW00053863", set.Station.ID)
	assert.InDelta(t, 90.5, set.Metrics[MetricTemperatureHigh].Value, 0.001)
	// No stddev columns published.
	assert.Zero(t, set.Metrics[MetricTemperatureHigh].Stddev)
}

func TestFetchHistorical_MissingFileSkipsStation(t *testing.T) {
	f := &fixture{stations: stationsPayload, airportCSV: airportCSV, downtownCSV: ""}
	client := newClient(t, f, 50)

	set, err := client.FetchHistorical(context.Background(), atlanta, julyFourth)
	require.NoError(t, err)
	assert.Equal(t, "GHCND:USW00013874", set.Station.ID)
}

func TestFetchHistorical_NoUsableStation(t *testing.T) {
	f := &fixture{stations: stationsPayload, airportCSV: "", downtownCSV: downtownCSV}
	client := newClient(t, f, 50)

	_, err := client.FetchHistorical(context.Background(), atlanta, julyFourth)
	require.Error(t, err)

	var noStation *domain.NoStationError
	require.True(t, errors.As(err, &noStation))
}

func TestFetchHistorical_NoStationsInRadius(t *testing.T) {
	// A 1 km radius excludes both stations.
	client := newClient(t, &fixture{stations: stationsPayload}, 1)

	_, err := client.FetchHistorical(context.Background(), atlanta, julyFourth)
	var noStation *domain.NoStationError
	require.True(t, errors.As(err, &noStation))
	assert.InDelta(t, 1.0, noStation.RadiusKm, 0.001)
}

func TestFetchHistorical_EmptyResults(t *testing.T) {
	f := &fixture{stations: `{"results": []}`}
	client := newClient(t, f, 50)

	_, err := client.FetchHistorical(context.Background(), atlanta, julyFourth)
	var noStation *domain.NoStationError
	require.True(t, errors.As(err, &noStation))
}

func TestFetchHistorical_MissingSentinelValue(t *testing.T) {
	f := &fixture{
		stations: stationsPayload,
		airportCSV: `STATION,DATE,DLY-TMAX-NORMAL,DLY-TMIN-NORMAL
USW00013874,07-04,-9999,719
`,
	}
	client := newClient(t, f, 50)

	_, err := client.FetchHistorical(context.Background(), atlanta, julyFourth)
	var noStation *domain.NoStationError
	require.True(t, errors.As(err, &noStation), "sentinel value should disqualify the station")
}

func TestFetchHistorical_UpstreamDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	web := webclient.New("noaa", time.Second, logger, observability.NewMetricsForTesting())
	client := NewClient(server.URL, server.URL, web, 50, logger)

	_, err := client.FetchHistorical(context.Background(), atlanta, julyFourth)
	var unavailable *domain.UpstreamUnavailableError
	require.True(t, errors.As(err, &unavailable))
}

func TestParseNormals_RowLookup(t *testing.T) {
	tests := []struct {
		name    string
		day     int
		wantErr bool
	}{
		{"existing day", 4, false},
		{"missing day", 25, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window := domain.CalendarWindow{Month: time.July, Day: tt.day, PeriodStart: 1981, PeriodEnd: 2010}
			metrics, err := parseNormals([]byte(airportCSV), window)
			if tt.wantErr {
				var skip *skipStationError
				require.True(t, errors.As(err, &skip))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, 89.1, metrics[MetricTemperatureHigh].Value, 0.001)
		})
	}
}

func TestNormalsFileURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewClient("", "", nil, 50, logger)

	u := client.normalsFileURL("GHCND:USW00013874")
	assert.Equal(t, fmt.Sprintf("%s/USW00013874.csv", DefaultNormalsURL), u)
}
