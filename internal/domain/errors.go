package domain

import (
	"fmt"
	"time"
)

// NotFoundError reports a location or postal code absent from the geocoding
// backend. Terminal: the query cannot succeed as written.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("location %q not found", e.Query)
}

// AmbiguousInputError reports structurally invalid input: a postal code of
// the wrong length, an empty city name, or a form the parser cannot
// recognize at all. Terminal.
type AmbiguousInputError struct {
	Input  string
	Reason string
}

func (e *AmbiguousInputError) Error() string {
	return fmt.Sprintf("invalid location input %q: %s", e.Input, e.Reason)
}

// NoStationError reports that no weather station with usable data exists
// within the search radius of the resolved coordinates. Terminal.
type NoStationError struct {
	Lat      float64
	Lon      float64
	RadiusKm float64
}

func (e *NoStationError) Error() string {
	return fmt.Sprintf("no station with usable data within %.0f km of (%.4f, %.4f)",
		e.RadiusKm, e.Lat, e.Lon)
}

// UpstreamUnavailableError reports a transient provider failure: network
// error, 5xx, rate limiting, or an open circuit breaker. The orchestrator
// retries these with bounded backoff.
type UpstreamUnavailableError struct {
	Provider string
	Err      error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Provider, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Err
}

// UnitMismatchError reports that the current and historical sets disagree on
// the unit of the same metric. This is a contract violation between the data
// source and the delta engine, not a user error.
type UnitMismatchError struct {
	Metric         string
	CurrentUnit    string
	HistoricalUnit string
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("unit mismatch for metric %q: current %q vs historical %q",
		e.Metric, e.CurrentUnit, e.HistoricalUnit)
}

// TimeoutError reports that the overall request deadline elapsed before the
// pipeline produced a result.
type TimeoutError struct {
	Query   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request for %q exceeded %s deadline", e.Query, e.Timeout)
}
