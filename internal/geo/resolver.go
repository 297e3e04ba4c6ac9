// Package geo resolves user-supplied locations to coordinates.
//
// The preferred backend is an offline postal-code table loaded once at
// startup (Table); a remote HTTP backend exists for deployments without a
// table file. Both satisfy Resolver, so the choice is wiring, not logic.
package geo

import (
	"context"

	"github.com/climasense/weather-delta/internal/domain"
)

// Resolver converts a normalized location query into coordinates.
type Resolver interface {
	Resolve(ctx context.Context, query domain.LocationQuery) (domain.Coordinates, error)
}
