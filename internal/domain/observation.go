package domain

import (
	"context"
	"fmt"
	"time"
)

// Coordinates is a WGS-84 latitude/longitude pair plus the canonical label
// the resolver produced for it (e.g. "Decatur, GA").
type Coordinates struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Label      string  `json:"label,omitempty"`
	PostalCode string  `json:"postal_code,omitempty"`
}

// Validate checks the coordinate range invariant.
func (c Coordinates) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", c.Lon)
	}
	return nil
}

// CalendarWindow identifies the calendar period a historical baseline covers:
// one month-day within a multi-year reference period.
type CalendarWindow struct {
	Month       time.Month `json:"month"`
	Day         int        `json:"day"`
	PeriodStart int        `json:"period_start"`
	PeriodEnd   int        `json:"period_end"`
}

// WindowForToday derives the calendar window for the current UTC date within
// the given normals reference period.
func WindowForToday(periodStart, periodEnd int) CalendarWindow {
	now := clock.Now().UTC()
	return CalendarWindow{
		Month:       now.Month(),
		Day:         now.Day(),
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	}
}

// MonthDay returns the window's day in the "MM-DD" form used by the NCEI
// daily normals CSV DATE column.
func (w CalendarWindow) MonthDay() string {
	return fmt.Sprintf("%02d-%02d", int(w.Month), w.Day)
}

// Period returns the reference period as "1981-2010".
func (w CalendarWindow) Period() string {
	return fmt.Sprintf("%d-%d", w.PeriodStart, w.PeriodEnd)
}

func (w CalendarWindow) String() string {
	return w.MonthDay() + " (" + w.Period() + ")"
}

// ObservationKind tags a set as current conditions or a historical baseline.
type ObservationKind string

const (
	KindCurrent    ObservationKind = "current"
	KindHistorical ObservationKind = "historical"
)

// Metric is a single measured or averaged value. Stddev is nonzero only for
// historical normals that publish one; the delta engine uses it for the
// ±1 sigma assessment.
type Metric struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	Stddev float64 `json:"stddev,omitempty"`
}

// Station identifies the weather station a set was observed or averaged at,
// with its great-circle distance from the query point.
type Station struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	DistanceKm float64 `json:"distance_km"`
}

// ObservationSet is a collection of weather metrics for one station and one
// time reference. ObservedAt is set for current sets, Window for historical
// ones. Sets are owned by the request that created them.
type ObservationSet struct {
	Kind       ObservationKind   `json:"kind"`
	Station    Station           `json:"station"`
	ObservedAt time.Time         `json:"observed_at,omitempty"`
	Window     CalendarWindow    `json:"window,omitempty"`
	Metrics    map[string]Metric `json:"metrics"`
}

// CurrentSource fetches the most recent observation for a coordinate pair.
type CurrentSource interface {
	FetchCurrent(ctx context.Context, coords Coordinates) (ObservationSet, error)
}

// HistoricalSource fetches the climate-normal baseline for a coordinate pair
// and calendar window.
type HistoricalSource interface {
	FetchHistorical(ctx context.Context, coords Coordinates, window CalendarWindow) (ObservationSet, error)
}

// ClimateDataSource supplies both halves of a delta comparison.
type ClimateDataSource interface {
	CurrentSource
	HistoricalSource
}
