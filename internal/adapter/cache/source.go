// Package cache provides a TTL read-through decorator for climate data
// sources. Current conditions age out quickly; normals are stable for a
// calendar day, so they get a much longer lifetime.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/climasense/weather-delta/internal/domain"
)

// Source wraps a ClimateDataSource with per-kind TTL caching keyed on
// rounded coordinates. Failures are never cached.
type Source struct {
	inner domain.ClimateDataSource
	clock clockwork.Clock

	currentTTL time.Duration
	normalsTTL time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	set       domain.ObservationSet
	expiresAt time.Time
}

// NewSource creates the cache decorator.
func NewSource(inner domain.ClimateDataSource, currentTTL, normalsTTL time.Duration) *Source {
	return &Source{
		inner:      inner,
		clock:      clockwork.NewRealClock(),
		currentTTL: currentTTL,
		normalsTTL: normalsTTL,
		entries:    make(map[string]cacheEntry),
	}
}

// SetClock replaces the cache clock. Tests use a fake to control expiry.
func (s *Source) SetClock(c clockwork.Clock) {
	s.clock = c
}

// FetchCurrent implements domain.CurrentSource with caching.
func (s *Source) FetchCurrent(ctx context.Context, coords domain.Coordinates) (domain.ObservationSet, error) {
	key := currentKey(coords)
	if set, ok := s.lookup(key); ok {
		return set, nil
	}

	set, err := s.inner.FetchCurrent(ctx, coords)
	if err != nil {
		return domain.ObservationSet{}, err
	}
	s.store(key, set, s.currentTTL)
	return set, nil
}

// FetchHistorical implements domain.HistoricalSource with caching.
func (s *Source) FetchHistorical(ctx context.Context, coords domain.Coordinates, window domain.CalendarWindow) (domain.ObservationSet, error) {
	key := historicalKey(coords, window)
	if set, ok := s.lookup(key); ok {
		return set, nil
	}

	set, err := s.inner.FetchHistorical(ctx, coords, window)
	if err != nil {
		return domain.ObservationSet{}, err
	}
	s.store(key, set, s.normalsTTL)
	return set, nil
}

func (s *Source) lookup(key string) (domain.ObservationSet, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || s.clock.Now().After(entry.expiresAt) {
		return domain.ObservationSet{}, false
	}
	return entry.set, true
}

func (s *Source) store(key string, set domain.ObservationSet, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = cacheEntry{set: set, expiresAt: s.clock.Now().Add(ttl)}

	// Drop anything already expired while we hold the lock, so the map does
	// not grow without bound across distinct locations.
	now := s.clock.Now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// Coordinates are rounded to two decimals (about a kilometre) so nearby
// queries share cache entries.
func currentKey(coords domain.Coordinates) string {
	return fmt.Sprintf("current|%.2f,%.2f", coords.Lat, coords.Lon)
}

func historicalKey(coords domain.Coordinates, window domain.CalendarWindow) string {
	return fmt.Sprintf("historical|%.2f,%.2f|%s|%s",
		coords.Lat, coords.Lon, window.MonthDay(), window.Period())
}
