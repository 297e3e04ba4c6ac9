// Package zippopotam implements the remote geocoding backend against the
// Zippopotam.us API. It is the fallback when no offline table is configured.
package zippopotam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/climasense/weather-delta/internal/adapter/webclient"
	"github.com/climasense/weather-delta/internal/domain"
)

const DefaultBaseURL = "http://api.zippopotam.us"

// Client resolves US locations via Zippopotam.us. Postal-code queries hit
// /us/{zip}; city queries hit /us/{state}/{city} to recover a postal code
// first, then resolve that.
type Client struct {
	baseURL string
	web     *webclient.Client
	logger  *slog.Logger
}

// NewClient creates a Zippopotam geocoding client.
func NewClient(baseURL string, web *webclient.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: baseURL, web: web, logger: logger}
}

// Resolve implements geo.Resolver against the remote API.
func (c *Client) Resolve(ctx context.Context, query domain.LocationQuery) (domain.Coordinates, error) {
	switch query.Kind {
	case domain.QueryPostalCode:
		return c.resolveZip(ctx, query, query.PostalCode)

	case domain.QueryCityState:
		if query.State == "" {
			return domain.Coordinates{}, &domain.AmbiguousInputError{
				Input:  query.Raw,
				Reason: "remote lookup needs a state, e.g. \"Decatur, GA\"",
			}
		}
		zip, err := c.zipForCity(ctx, query)
		if err != nil {
			return domain.Coordinates{}, err
		}
		return c.resolveZip(ctx, query, zip)

	default:
		return domain.Coordinates{}, &domain.AmbiguousInputError{
			Input: query.Raw, Reason: "unknown query kind",
		}
	}
}

func (c *Client) resolveZip(ctx context.Context, query domain.LocationQuery, zip string) (domain.Coordinates, error) {
	var resp zipResponse
	u := fmt.Sprintf("%s/us/%s", c.baseURL, url.PathEscape(zip))
	if err := c.web.GetJSON(ctx, u, &resp); err != nil {
		return domain.Coordinates{}, c.mapError(err, query)
	}
	if len(resp.Places) == 0 {
		return domain.Coordinates{}, &domain.NotFoundError{Query: query.Raw}
	}

	place := resp.Places[0]
	lat, err := strconv.ParseFloat(place.Latitude, 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("zippopotam: bad latitude %q: %w", place.Latitude, err)
	}
	lon, err := strconv.ParseFloat(place.Longitude, 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("zippopotam: bad longitude %q: %w", place.Longitude, err)
	}

	coords := domain.Coordinates{
		Lat:        lat,
		Lon:        lon,
		Label:      place.Name + ", " + place.StateAbbr,
		PostalCode: zip,
	}
	if err := coords.Validate(); err != nil {
		return domain.Coordinates{}, fmt.Errorf("zippopotam: %w", err)
	}
	return coords, nil
}

// zipForCity looks up the first postal code for a city/state pair.
func (c *Client) zipForCity(ctx context.Context, query domain.LocationQuery) (string, error) {
	var resp cityResponse
	u := fmt.Sprintf("%s/us/%s/%s", c.baseURL,
		url.PathEscape(query.State), url.PathEscape(query.City))
	if err := c.web.GetJSON(ctx, u, &resp); err != nil {
		return "", c.mapError(err, query)
	}
	if len(resp.Places) == 0 {
		return "", &domain.NotFoundError{Query: query.Raw}
	}
	return resp.Places[0].PostCode, nil
}

// mapError turns terminal 404s into NotFoundError; everything else passes
// through (the webclient already wraps transient failures).
func (c *Client) mapError(err error, query domain.LocationQuery) error {
	var statusErr *webclient.StatusError
	if errors.As(err, &statusErr) && statusErr.Status == http.StatusNotFound {
		return &domain.NotFoundError{Query: query.Raw}
	}
	return err
}

// Zippopotam.us response types.

type zipResponse struct {
	Places []zipPlace `json:"places"`
}

type zipPlace struct {
	Name      string `json:"place name"`
	StateAbbr string `json:"state abbreviation"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

type cityResponse struct {
	Places []cityPlace `json:"places"`
}

type cityPlace struct {
	PostCode  string `json:"post code"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}
