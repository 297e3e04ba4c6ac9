package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/climasense/weather-delta/internal/domain"
	"github.com/climasense/weather-delta/internal/query"
)

// renderReport writes the human-readable comparison. Metrics print in name
// order so output is stable.
func renderReport(w io.Writer, report *query.Report) {
	coords := report.Coordinates
	label := coords.Label
	if label == "" {
		label = fmt.Sprintf("(%.4f, %.4f)", coords.Lat, coords.Lon)
	}
	if coords.PostalCode != "" {
		label += " " + coords.PostalCode
	}

	fmt.Fprintf(w, "Weather for %s\n", label)
	fmt.Fprintf(w, "Current conditions from %s (%.1f km away), observed %s\n",
		report.Current.Station.ID,
		report.Current.Station.DistanceKm,
		report.Current.ObservedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(w, "Historical normals for %s from %s (%.1f km away)\n",
		report.Window, report.Historical.Station.ID, report.Historical.Station.DistanceKm)
	fmt.Fprintln(w)

	for _, name := range sortedMetricNames(report.Deltas) {
		fmt.Fprintf(w, "  %s\n", formatDelta(name, report.Deltas[name]))
	}
}

func sortedMetricNames(deltas domain.DeltaResult) []string {
	names := make([]string, 0, len(deltas))
	for name := range deltas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func formatDelta(name string, d domain.MetricDelta) string {
	display := strings.ReplaceAll(name, "_", " ")

	if d.Unavailable {
		switch {
		case d.Current != nil:
			return fmt.Sprintf("%s: %.1f %s (no historical baseline)", display, *d.Current, d.Unit)
		case d.Historical != nil:
			return fmt.Sprintf("%s: normally %.1f %s (no current reading)", display, *d.Historical, d.Unit)
		default:
			return display + ": unavailable"
		}
	}

	line := fmt.Sprintf("%s: %.1f %s vs normal %.1f %s, delta %+.1f",
		display, *d.Current, d.Unit, *d.Historical, d.Unit, *d.Delta)
	if d.PercentChange != nil {
		line += fmt.Sprintf(" (%+.1f%%)", *d.PercentChange*100)
	}
	if d.Assessment != "" {
		line += ", " + d.Assessment
	}
	return line
}

func writeJSON(w io.Writer, report *query.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
