// Package webclient provides the shared HTTP client used by all upstream
// adapters. It classifies failures into the pipeline's error taxonomy and
// guards each provider with a circuit breaker, so adapters only deal with
// decoded payloads and typed errors.
package webclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/climasense/weather-delta/internal/domain"
	"github.com/climasense/weather-delta/internal/observability"
)

const defaultUserAgent = "weather-delta/1.0 (github.com/climasense/weather-delta)"

// maxBodyBytes bounds response reads; normals CSVs run to a few hundred KB,
// everything else is far smaller.
const maxBodyBytes = 8 << 20

// StatusError reports a terminal non-2xx response. Transient statuses (5xx,
// 429) never surface as StatusError; they become UpstreamUnavailableError.
type StatusError struct {
	Provider string
	Status   int
	URL      string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d for %s", e.Provider, e.Status, e.URL)
}

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
)

// Client wraps an http.Client with provider-scoped error classification,
// metrics, and a circuit breaker.
type Client struct {
	provider   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	headers    map[string]string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// Option customizes a Client.
type Option func(*Client)

// WithHeader adds a header to every request, e.g. the NOAA token.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithHTTPClient replaces the underlying HTTP client. Tests use this to
// point at an httptest server with a short timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for one upstream provider. The provider name labels
// metrics and the circuit breaker.
func New(provider string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Client {
	c := &Client{
		provider:   provider,
		httpClient: &http.Client{Timeout: timeout},
		headers:    map[string]string{"User-Agent": defaultUserAgent},
		logger:     logger,
		metrics:    metrics,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    provider,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"provider", name, "from", from.String(), "to", to.String())
		},
	})

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a single GET and returns the response body. Transport errors,
// 5xx, 429, and an open breaker all map to UpstreamUnavailableError so the
// orchestrator can decide whether to retry. Other non-2xx statuses are
// terminal and surface as StatusError.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	body, err := c.get(ctx, url)
	c.metrics.ProviderDuration.WithLabelValues(c.provider).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		c.metrics.ProviderRequests.WithLabelValues(c.provider, "success").Inc()
	case isTransient(ctx, err):
		c.metrics.ProviderRequests.WithLabelValues(c.provider, "unavailable").Inc()
		c.logger.Warn("upstream unavailable", "provider", c.provider, "url", url, "error", err)
		return nil, &domain.UpstreamUnavailableError{Provider: c.provider, Err: err}
	default:
		c.metrics.ProviderRequests.WithLabelValues(c.provider, "error").Inc()
	}
	return body, err
}

// GetJSON performs a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	body, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.provider, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		for key, value := range c.headers {
			req.Header.Set(key, value)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, errRateLimited
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: HTTP %d", errServerError, resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, &StatusError{Provider: c.provider, Status: resp.StatusCode, URL: url}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// isTransient reports whether an error is worth retrying. Terminal statuses
// and malformed requests are not.
func isTransient(ctx context.Context, err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	if errors.Is(err, errRateLimited) || errors.Is(err, errServerError) {
		return true
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// The per-request timeout of the underlying http.Client also surfaces
		// as DeadlineExceeded. That is a hung provider, which is retryable;
		// only an expired request context is terminal.
		return ctx.Err() == nil
	}
	// Remaining cases are transport-level failures from http.Client.Do
	// (connection refused, DNS).
	return true
}
