// Command weatherdelta compares current conditions against the historical
// baseline for a US location given as a ZIP code or "City, ST".
//
//	weatherdelta 30306
//	weatherdelta "Decatur, GA"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/climasense/weather-delta/internal/adapter/cache"
	"github.com/climasense/weather-delta/internal/adapter/httpserver"
	"github.com/climasense/weather-delta/internal/adapter/noaa"
	"github.com/climasense/weather-delta/internal/adapter/nws"
	"github.com/climasense/weather-delta/internal/adapter/webclient"
	"github.com/climasense/weather-delta/internal/adapter/zippopotam"
	"github.com/climasense/weather-delta/internal/config"
	"github.com/climasense/weather-delta/internal/domain"
	"github.com/climasense/weather-delta/internal/geo"
	"github.com/climasense/weather-delta/internal/observability"
	"github.com/climasense/weather-delta/internal/query"
)

func main() {
	jsonOut := flag.Bool("json", false, "emit the report as JSON instead of text")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: weatherdelta [-json] <zip code or \"City, ST\">")
		os.Exit(2)
	}
	location := strings.Join(flag.Args(), " ")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	os.Exit(run(cfg, logger, metrics, location, *jsonOut))
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, location string, jsonOut bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resolver, readiness, err := buildResolver(cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to build resolver", "error", err)
		return 1
	}

	source := buildSource(cfg, logger, metrics)

	orchestrator := query.NewOrchestrator(resolver, source, query.Options{
		MaxAttempts:    cfg.MaxAttempts,
		RetryBase:      cfg.RetryBase,
		RetryMax:       cfg.RetryMax,
		RequestTimeout: cfg.RequestTimeout,
		PeriodStart:    cfg.NormalsPeriodStart,
		PeriodEnd:      cfg.NormalsPeriodEnd,
	}, logger, metrics)

	if cfg.MetricsAddr != "" {
		srv := httpserver.NewServer(cfg.MetricsAddr, readiness, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server error", "error", err)
			}
		}()
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				logger.Error("ops server shutdown error", "error", err)
			}
		}()
	}

	report, err := orchestrator.Handle(ctx, location)
	if err != nil {
		logger.Error("query failed", "location", location, "error", err)
		fmt.Fprintln(os.Stderr, userMessage(err))
		return 1
	}

	if jsonOut {
		if err := writeJSON(os.Stdout, report); err != nil {
			logger.Error("failed to encode report", "error", err)
			return 1
		}
		return 0
	}
	renderReport(os.Stdout, report)
	return 0
}

// buildResolver picks the offline table when configured, otherwise the
// remote backend, and wraps either in the LRU cache.
func buildResolver(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (geo.Resolver, httpserver.ReadinessChecker, error) {
	if cfg.ZipTablePath != "" {
		table, err := geo.LoadTable(cfg.ZipTablePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return geo.NewCachedResolver(table, cfg.GeocodeCacheSize, metrics), table, nil
	}

	logger.Info("no offline table configured, using zippopotam.us")
	web := webclient.New("zippopotam", cfg.HTTPTimeout, logger, metrics)
	remote := zippopotam.NewClient(zippopotam.DefaultBaseURL, web, logger)
	return geo.NewCachedResolver(remote, cfg.GeocodeCacheSize, metrics), alwaysReady{}, nil
}

// buildSource assembles the NWS and NOAA clients behind the TTL cache.
func buildSource(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) domain.ClimateDataSource {
	nwsWeb := webclient.New("nws", cfg.HTTPTimeout, logger, metrics)
	current := nws.NewClient(cfg.NWSBaseURL, nwsWeb, cfg.StationRadiusKm, logger)

	noaaWeb := webclient.New("noaa", cfg.HTTPTimeout, logger, metrics,
		webclient.WithHeader("token", cfg.NOAAToken))
	historical := noaa.NewClient(cfg.NOAABaseURL, cfg.NOAANormalsURL, noaaWeb, cfg.StationRadiusKm, logger)

	return cache.NewSource(splitSource{current, historical}, cfg.CurrentTTL, cfg.NormalsTTL)
}

// splitSource joins independent current and historical sources into one
// ClimateDataSource.
type splitSource struct {
	current    domain.CurrentSource
	historical domain.HistoricalSource
}

func (s splitSource) FetchCurrent(ctx context.Context, coords domain.Coordinates) (domain.ObservationSet, error) {
	return s.current.FetchCurrent(ctx, coords)
}

func (s splitSource) FetchHistorical(ctx context.Context, coords domain.Coordinates, window domain.CalendarWindow) (domain.ObservationSet, error) {
	return s.historical.FetchHistorical(ctx, coords, window)
}

// alwaysReady is the readiness checker for the remote-resolver path, which
// has no local state to verify.
type alwaysReady struct{}

func (alwaysReady) CheckReadiness(_ context.Context) error { return nil }

// userMessage maps pipeline errors to the short messages printed on stderr.
func userMessage(err error) string {
	var (
		notFound    *domain.NotFoundError
		ambiguous   *domain.AmbiguousInputError
		noStation   *domain.NoStationError
		unavailable *domain.UpstreamUnavailableError
		timeout     *domain.TimeoutError
	)
	switch {
	case errors.As(err, &ambiguous):
		return fmt.Sprintf("Could not understand %q: %s.", ambiguous.Input, ambiguous.Reason)
	case errors.As(err, &notFound):
		return fmt.Sprintf("No location found for %q.", notFound.Query)
	case errors.As(err, &noStation):
		return fmt.Sprintf("No weather station with usable data within %.0f km of that location.", noStation.RadiusKm)
	case errors.As(err, &unavailable):
		return fmt.Sprintf("The %s service is currently unavailable; try again later.", unavailable.Provider)
	case errors.As(err, &timeout):
		return fmt.Sprintf("The request took longer than %s; try again later.", timeout.Timeout)
	default:
		return "Something went wrong: " + err.Error()
	}
}
