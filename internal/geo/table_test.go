package geo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climasense/weather-delta/internal/domain"
)

const testTableCSV = `zip,city,state,lat,lon,population
30306,Atlanta,GA,33.7845,-84.3512,25000
30030,Decatur,GA,33.7748,-84.2963,24000
62521,Decatur,IL,39.8256,-88.9268,70000
35601,Decatur,AL,34.6059,-86.9833,57000
78701,Austin,TX,30.2711,-97.7437,980000
`

func testTable(t *testing.T) *Table {
	t.Helper()
	table, err := ReadTable(strings.NewReader(testTableCSV))
	require.NoError(t, err)
	return table
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustQuery(t *testing.T, raw string) domain.LocationQuery {
	t.Helper()
	q, err := domain.ParseLocationQuery(raw)
	require.NoError(t, err)
	return q
}

func TestTable_ResolveZip(t *testing.T) {
	table := testTable(t)

	coords, err := table.Resolve(context.Background(), mustQuery(t, "30306"))
	require.NoError(t, err)

	assert.InDelta(t, 33.78, coords.Lat, 0.01)
	assert.InDelta(t, -84.32, coords.Lon, 0.05)
	assert.Equal(t, "Atlanta, GA", coords.Label)
	assert.Equal(t, "30306", coords.PostalCode)
}

func TestTable_ResolveZip_NotFound(t *testing.T) {
	table := testTable(t)

	_, err := table.Resolve(context.Background(), mustQuery(t, "99999"))
	require.Error(t, err)

	var notFound *domain.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "99999", notFound.Query)
}

func TestTable_ResolveCityState(t *testing.T) {
	table := testTable(t)

	coords, err := table.Resolve(context.Background(), mustQuery(t, "Decatur, GA"))
	require.NoError(t, err)

	assert.Equal(t, "Decatur, GA", coords.Label)
	assert.Equal(t, "30030", coords.PostalCode)
}

func TestTable_ResolveAmbiguousCity_HighestPopulationWins(t *testing.T) {
	table := testTable(t)

	// Three Decaturs; IL has the largest population and must win when no
	// state narrows the search.
	coords, err := table.Resolve(context.Background(), mustQuery(t, "Decatur"))
	require.NoError(t, err)
	assert.Equal(t, "Decatur, IL", coords.Label)

	// Repeated calls pick the same candidate.
	for range 5 {
		again, err := table.Resolve(context.Background(), mustQuery(t, "decatur"))
		require.NoError(t, err)
		assert.Equal(t, coords, again)
	}
}

func TestTable_ResolveAmbiguousCity_AlphabeticalTieBreak(t *testing.T) {
	const tied = `zip,city,state,lat,lon,population
10001,Springfield,MO,37.2,-93.3,50000
20001,Springfield,IL,39.8,-89.6,50000
30001,Springfield,MA,42.1,-72.6,50000
`
	table, err := ReadTable(strings.NewReader(tied))
	require.NoError(t, err)

	coords, err := table.Resolve(context.Background(), mustQuery(t, "Springfield"))
	require.NoError(t, err)
	assert.Equal(t, "Springfield, IL", coords.Label, "equal populations break alphabetically on label")
}

func TestTable_ResolveCityWrongState(t *testing.T) {
	table := testTable(t)

	_, err := table.Resolve(context.Background(), mustQuery(t, "Austin, GA"))
	var notFound *domain.NotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestReadTable_Invalid(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"missing column", "zip,city,state\n30306,Atlanta,GA\n"},
		{"bad latitude", "zip,city,state,lat,lon\n30306,Atlanta,GA,abc,-84.3\n"},
		{"latitude out of range", "zip,city,state,lat,lon\n30306,Atlanta,GA,95.0,-84.3\n"},
		{"longitude out of range", "zip,city,state,lat,lon\n30306,Atlanta,GA,33.8,-200.0\n"},
		{"empty file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTable(strings.NewReader(tt.csv))
			require.Error(t, err)
		})
	}
}

func TestLoadTable_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zips.csv")
	require.NoError(t, os.WriteFile(path, []byte(testTableCSV), 0o600))

	table, err := LoadTable(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 5, table.Len())
	assert.NoError(t, table.CheckReadiness(context.Background()))
}

func TestLoadTable_MissingFile(t *testing.T) {
	_, err := LoadTable(filepath.Join(t.TempDir(), "absent.csv"), discardLogger())
	require.Error(t, err)
}

func TestTable_CheckReadiness_Empty(t *testing.T) {
	table, err := ReadTable(strings.NewReader("zip,city,state,lat,lon\n"))
	require.NoError(t, err)
	assert.Error(t, table.CheckReadiness(context.Background()))
}
