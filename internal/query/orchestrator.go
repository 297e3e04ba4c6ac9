// Package query coordinates the delta pipeline: parse the location input,
// resolve coordinates, fetch the current and historical observation sets
// concurrently, and compute the normalized deltas.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/climasense/weather-delta/internal/domain"
	"github.com/climasense/weather-delta/internal/geo"
	"github.com/climasense/weather-delta/internal/observability"
)

// Options tunes orchestrator behaviour. Zero values disable the request
// timeout and retries.
type Options struct {
	// MaxAttempts bounds fetch attempts per source, including the first.
	MaxAttempts int
	// RetryBase is the first backoff delay; it doubles per retry up to
	// RetryMax.
	RetryBase time.Duration
	RetryMax  time.Duration
	// RequestTimeout caps one Handle call end to end.
	RequestTimeout time.Duration
	// PeriodStart and PeriodEnd name the normals reference period, e.g.
	// 1981 and 2010.
	PeriodStart int
	PeriodEnd   int
}

// Report is the result of one delta query.
type Report struct {
	Query       domain.LocationQuery  `json:"query"`
	Coordinates domain.Coordinates    `json:"coordinates"`
	Window      domain.CalendarWindow `json:"window"`
	Current     domain.ObservationSet `json:"current"`
	Historical  domain.ObservationSet `json:"historical"`
	Deltas      domain.DeltaResult    `json:"deltas"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// Orchestrator wires the resolver, data source, and delta engine into one
// Handle operation.
type Orchestrator struct {
	resolver geo.Resolver
	source   domain.ClimateDataSource
	opts     Options
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewOrchestrator creates the orchestrator.
func NewOrchestrator(resolver geo.Resolver, source domain.ClimateDataSource, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Orchestrator{
		resolver: resolver,
		source:   source,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
	}
}

// Handle runs the full pipeline for one raw location input.
func (o *Orchestrator) Handle(ctx context.Context, raw string) (*Report, error) {
	o.metrics.QueriesInFlight.Inc()
	defer o.metrics.QueriesInFlight.Dec()

	start := time.Now()
	report, err := o.handle(ctx, raw)
	o.metrics.QueryDuration.Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	o.metrics.QueriesHandled.WithLabelValues(outcome).Inc()
	return report, err
}

func (o *Orchestrator) handle(ctx context.Context, raw string) (*Report, error) {
	if o.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RequestTimeout)
		defer cancel()
	}

	query, err := domain.ParseLocationQuery(raw)
	if err != nil {
		o.metrics.ResolveRequests.WithLabelValues("invalid").Inc()
		return nil, err
	}

	coords, err := o.resolver.Resolve(ctx, query)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			o.metrics.ResolveRequests.WithLabelValues("not_found").Inc()
		} else {
			o.metrics.ResolveRequests.WithLabelValues("error").Inc()
		}
		return nil, o.mapTimeout(err, raw)
	}
	o.metrics.ResolveRequests.WithLabelValues("success").Inc()
	o.logger.Info("location resolved",
		"query", query.String(), "lat", coords.Lat, "lon", coords.Lon, "label", coords.Label)

	window := domain.WindowForToday(o.opts.PeriodStart, o.opts.PeriodEnd)

	current, historical, err := o.fetchBoth(ctx, coords, window)
	if err != nil {
		return nil, o.mapTimeout(err, raw)
	}

	deltas, err := domain.ComputeDelta(current, historical)
	if err != nil {
		return nil, err
	}

	return &Report{
		Query:       query,
		Coordinates: coords,
		Window:      window,
		Current:     current,
		Historical:  historical,
		Deltas:      deltas,
		GeneratedAt: domain.Now().UTC(),
	}, nil
}

// fetchBoth runs the current and historical fetches concurrently. The first
// error wins; the other fetch is abandoned via context cancellation.
func (o *Orchestrator) fetchBoth(ctx context.Context, coords domain.Coordinates, window domain.CalendarWindow) (domain.ObservationSet, domain.ObservationSet, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		current, historical domain.ObservationSet
		currentErr, histErr error
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		historical, histErr = o.fetchWithRetry(ctx, "historical", func(ctx context.Context) (domain.ObservationSet, error) {
			return o.source.FetchHistorical(ctx, coords, window)
		})
		if histErr != nil {
			cancel()
		}
	}()

	current, currentErr = o.fetchWithRetry(ctx, "current", func(ctx context.Context) (domain.ObservationSet, error) {
		return o.source.FetchCurrent(ctx, coords)
	})
	if currentErr != nil {
		cancel()
	}
	<-done

	// A fetch abandoned because its sibling failed reports context.Canceled;
	// surface the original failure instead.
	if currentErr != nil && !errors.Is(currentErr, context.Canceled) {
		return domain.ObservationSet{}, domain.ObservationSet{}, fmt.Errorf("fetch current conditions: %w", currentErr)
	}
	if histErr != nil {
		return domain.ObservationSet{}, domain.ObservationSet{}, fmt.Errorf("fetch historical baseline: %w", histErr)
	}
	if currentErr != nil {
		return domain.ObservationSet{}, domain.ObservationSet{}, fmt.Errorf("fetch current conditions: %w", currentErr)
	}
	return current, historical, nil
}

// fetchWithRetry retries transient upstream failures with doubling backoff.
// Terminal errors (NotFound, NoStation, bad data) return immediately.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, kind string, fetch func(context.Context) (domain.ObservationSet, error)) (domain.ObservationSet, error) {
	backoff := o.opts.RetryBase

	var lastErr error
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		set, err := fetch(ctx)
		if err == nil {
			return set, nil
		}
		lastErr = err

		var unavailable *domain.UpstreamUnavailableError
		if !errors.As(err, &unavailable) {
			return domain.ObservationSet{}, err
		}
		if attempt == o.opts.MaxAttempts {
			break
		}

		o.metrics.FetchRetries.Inc()
		o.logger.Warn("transient fetch failure, retrying",
			"kind", kind, "attempt", attempt, "backoff", backoff, "error", err)

		if !sleepWithContext(ctx, backoff) {
			return domain.ObservationSet{}, ctx.Err()
		}
		backoff = nextBackoff(backoff, o.opts.RetryMax)
	}

	return domain.ObservationSet{}, lastErr
}

// mapTimeout converts a deadline expiry into the typed timeout error so
// callers can distinguish it from upstream failures. An upstream error that
// merely wraps a provider-side deadline stays an upstream error.
func (o *Orchestrator) mapTimeout(err error, raw string) error {
	var unavailable *domain.UpstreamUnavailableError
	if errors.As(err, &unavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TimeoutError{Query: raw, Timeout: o.opts.RequestTimeout}
	}
	return err
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if maxBackoff > 0 && next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
