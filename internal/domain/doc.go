// Package domain models the weather-delta pipeline: how today's conditions at
// a location compare against that location's long-run climate normals.
//
// # Data Sources
//
// Current conditions come from the National Weather Service (weather.gov)
// API: a coordinate pair resolves to point metadata, the point's nearest
// observation station supplies the latest observation, and the point's
// forecast supplies today's predicted high and low.
//
// Historical baselines come from the NOAA NCEI daily climate normals
// (NORMAL_DLY dataset). Each station publishes a CSV of per-calendar-day
// normals averaged over a multi-year reference period (1981-2010 by
// default). Values in those CSVs are tenths of degrees Fahrenheit and are
// divided by 10 on ingest.
//
// # Metric Conventions
//
// Metric names are lowercase snake_case: "temperature", "temperature_high",
// "temperature_low", "wind_speed". Units are plain strings ("F", "km/h");
// adapters normalize units before an ObservationSet leaves them, and the
// delta engine treats a unit disagreement for the same metric name as a
// contract violation rather than converting.
//
// Normals metrics may carry a standard deviation (from the DLY-*-STDDEV
// columns). When present, the delta engine classifies the current value
// against the ±1 sigma band around the normal.
//
// # Error Taxonomy
//
// The pipeline distinguishes six failure classes, each a typed error in this
// package: NotFoundError, AmbiguousInputError, NoStationError,
// UpstreamUnavailableError (the only retryable class), UnitMismatchError,
// and TimeoutError. Callers match them with errors.As.
package domain
