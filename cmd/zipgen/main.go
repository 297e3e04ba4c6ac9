// Command zipgen builds and checks the offline geocoding table.
//
// Build mode converts a GeoNames postal-code dump (tab-separated, the US.txt
// layout) into the CSV the pipeline loads at startup:
//
//	go run ./cmd/zipgen -in US.txt -out data/zips.csv
//
// Validate mode loads an existing table and reports its shape:
//
//	go run ./cmd/zipgen -validate data/zips.csv
package main

import (
	"bufio"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/climasense/weather-delta/internal/domain"
	"github.com/climasense/weather-delta/internal/geo"
)

// GeoNames postal-code dump columns.
const (
	colCountry   = 0
	colPostal    = 1
	colPlace     = 2
	colStateCode = 4
	colLat       = 9
	colLon       = 10
	geonamesCols = 12
)

func main() {
	in := flag.String("in", "", "GeoNames postal-code dump (tab-separated)")
	out := flag.String("out", "", "output table CSV path")
	validate := flag.String("validate", "", "validate an existing table CSV and exit")
	flag.Parse()

	switch {
	case *validate != "":
		os.Exit(runValidate(*validate))
	case *in != "" && *out != "":
		os.Exit(runBuild(*in, *out))
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runBuild(inPath, outPath string) int {
	inFile, err := os.Open(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open input: %v\n", err)
		return 1
	}
	defer inFile.Close()

	outFile, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		return 1
	}

	stats, err := convert(inFile, outFile)
	if closeErr := outFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "convert: %v\n", err)
		return 1
	}

	fmt.Printf("wrote %s: %d zip codes (%d rows read, %d skipped)\n",
		outPath, stats.written, stats.read, stats.skipped)
	return 0
}

type buildStats struct {
	read    int
	written int
	skipped int
}

// convert streams the dump into table CSV form. Duplicate postal codes keep
// the first row seen, matching the table loader's first-row-wins rule.
func convert(r io.Reader, w io.Writer) (buildStats, error) {
	var stats buildStats
	seen := make(map[string]bool)

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"zip", "city", "state", "lat", "lon", "population"}); err != nil {
		return stats, err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		stats.read++

		fields := strings.Split(line, "\t")
		if len(fields) < geonamesCols {
			stats.skipped++
			continue
		}
		if fields[colCountry] != "US" {
			stats.skipped++
			continue
		}

		zip := strings.TrimSpace(fields[colPostal])
		state := strings.TrimSpace(fields[colStateCode])
		if len(zip) != 5 || len(state) != 2 || seen[zip] {
			stats.skipped++
			continue
		}
		lat, err := strconv.ParseFloat(fields[colLat], 64)
		if err != nil {
			stats.skipped++
			continue
		}
		lon, err := strconv.ParseFloat(fields[colLon], 64)
		if err != nil {
			stats.skipped++
			continue
		}
		if err := (domain.Coordinates{Lat: lat, Lon: lon}).Validate(); err != nil {
			stats.skipped++
			continue
		}

		seen[zip] = true
		stats.written++
		if err := writer.Write([]string{
			zip,
			strings.TrimSpace(fields[colPlace]),
			state,
			fields[colLat],
			fields[colLon],
			"0",
		}); err != nil {
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, err
	}

	writer.Flush()
	return stats, writer.Error()
}

func runValidate(path string) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open table: %v\n", err)
		return 1
	}
	defer f.Close()

	table, err := geo.ReadTable(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		return 1
	}
	if table.Len() == 0 {
		fmt.Fprintln(os.Stderr, "FAIL: table has no entries")
		return 1
	}

	fmt.Printf("OK: %d zip codes\n", table.Len())
	for _, state := range topStates(table, 5) {
		fmt.Printf("  %s: %d\n", state.code, state.count)
	}
	return 0
}

type stateCount struct {
	code  string
	count int
}

func topStates(table *geo.Table, n int) []stateCount {
	byState := make(map[string]int)
	for _, entry := range table.Entries() {
		byState[entry.State]++
	}

	counts := make([]stateCount, 0, len(byState))
	for code, count := range byState {
		counts = append(counts, stateCount{code, count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].code < counts[j].code
	})

	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}
