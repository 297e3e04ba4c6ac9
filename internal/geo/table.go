package geo

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/climasense/weather-delta/internal/domain"
)

// Entry is one row of the offline geocoding table.
type Entry struct {
	Zip        string
	City       string
	State      string
	Lat        float64
	Lon        float64
	Population int
}

// Label returns the canonical "City, ST" label for the entry.
func (e Entry) Label() string {
	return e.City + ", " + e.State
}

// Table is the offline geocoding backend: a read-only in-memory index built
// from a CSV at startup. Lookups never touch the network, which keeps
// resolution free of third-party rate limits. Safe for concurrent readers.
type Table struct {
	byZip  map[string]Entry
	byCity map[string][]Entry // key: uppercased city name
}

// LoadTable reads a geocoding table CSV with the header
// zip,city,state,lat,lon,population (population optional).
func LoadTable(path string, logger *slog.Logger) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open zip table: %w", err)
	}
	defer f.Close()

	t, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("read zip table %s: %w", path, err)
	}
	logger.Info("geocoding table loaded", "path", path, "zip_codes", len(t.byZip), "cities", len(t.byCity))
	return t, nil
}

// ReadTable parses table CSV from a reader. Exposed so tests and zipgen can
// build tables without a file on disk.
func ReadTable(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"zip", "city", "state", "lat", "lon"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	t := &Table{
		byZip:  make(map[string]Entry),
		byCity: make(map[string][]Entry),
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		entry, err := parseEntry(row, col)
		if err != nil {
			return nil, err
		}

		// First row wins per ZIP so input order is authoritative.
		if _, exists := t.byZip[entry.Zip]; !exists {
			t.byZip[entry.Zip] = entry
		}
		cityKey := strings.ToUpper(entry.City)
		t.byCity[cityKey] = append(t.byCity[cityKey], entry)
	}

	// Rank city candidates once at load: population descending, then
	// alphabetical on the canonical label, then ZIP. Resolution later just
	// takes the first match, which makes ambiguous lookups deterministic.
	for _, entries := range t.byCity {
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Population != entries[j].Population {
				return entries[i].Population > entries[j].Population
			}
			if entries[i].Label() != entries[j].Label() {
				return entries[i].Label() < entries[j].Label()
			}
			return entries[i].Zip < entries[j].Zip
		})
	}

	return t, nil
}

func parseEntry(row []string, col map[string]int) (Entry, error) {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	lat, err := strconv.ParseFloat(field("lat"), 64)
	if err != nil {
		return Entry{}, fmt.Errorf("zip %s: bad latitude %q", field("zip"), field("lat"))
	}
	lon, err := strconv.ParseFloat(field("lon"), 64)
	if err != nil {
		return Entry{}, fmt.Errorf("zip %s: bad longitude %q", field("zip"), field("lon"))
	}
	if err := (domain.Coordinates{Lat: lat, Lon: lon}).Validate(); err != nil {
		return Entry{}, fmt.Errorf("zip %s: %w", field("zip"), err)
	}

	population := 0
	if p := field("population"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			population = n
		}
	}

	return Entry{
		Zip:        field("zip"),
		City:       field("city"),
		State:      strings.ToUpper(field("state")),
		Lat:        lat,
		Lon:        lon,
		Population: population,
	}, nil
}

// Resolve implements Resolver against the in-memory table.
func (t *Table) Resolve(_ context.Context, query domain.LocationQuery) (domain.Coordinates, error) {
	switch query.Kind {
	case domain.QueryPostalCode:
		entry, ok := t.byZip[query.PostalCode]
		if !ok {
			return domain.Coordinates{}, &domain.NotFoundError{Query: query.Raw}
		}
		return entry.coordinates(), nil

	case domain.QueryCityState:
		candidates := t.byCity[query.City]
		for _, entry := range candidates {
			if query.State == "" || entry.State == query.State {
				return entry.coordinates(), nil
			}
		}
		return domain.Coordinates{}, &domain.NotFoundError{Query: query.Raw}

	default:
		return domain.Coordinates{}, &domain.AmbiguousInputError{
			Input: query.Raw, Reason: "unknown query kind",
		}
	}
}

// CheckReadiness reports whether the table holds any entries. Used by the
// ops server's /readyz endpoint.
func (t *Table) CheckReadiness(_ context.Context) error {
	if len(t.byZip) == 0 {
		return errors.New("geocoding table is empty")
	}
	return nil
}

// Len returns the number of distinct postal codes in the table.
func (t *Table) Len() int {
	return len(t.byZip)
}

// Entries returns every entry keyed by postal code, in no particular order.
// The zipgen tool uses it for validation reporting.
func (t *Table) Entries() []Entry {
	entries := make([]Entry, 0, len(t.byZip))
	for _, entry := range t.byZip {
		entries = append(entries, entry)
	}
	return entries
}

func (e Entry) coordinates() domain.Coordinates {
	return domain.Coordinates{
		Lat:        e.Lat,
		Lon:        e.Lon,
		Label:      e.Label(),
		PostalCode: e.Zip,
	}
}
