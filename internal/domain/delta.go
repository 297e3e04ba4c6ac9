package domain

// Assessment labels for MetricDelta, derived from the ±1 sigma band around
// the historical normal when a standard deviation is published.
const (
	AssessAboveNormal = "above normal range"
	AssessBelowNormal = "below normal range"
	AssessNearNormal  = "near normal"
)

// MetricDelta is the comparison of one metric across the current and
// historical sets. Pointer fields are nil when the corresponding side is
// missing (Unavailable) or the value is undefined (PercentChange when the
// historical value is zero).
type MetricDelta struct {
	Current       *float64 `json:"current"`
	Historical    *float64 `json:"historical"`
	Delta         *float64 `json:"delta"`
	PercentChange *float64 `json:"percent_change"`
	Unit          string   `json:"unit"`
	Unavailable   bool     `json:"unavailable,omitempty"`
	Assessment    string   `json:"assessment,omitempty"`
}

// DeltaResult maps metric names to their current-vs-historical comparison.
type DeltaResult map[string]MetricDelta

// ComputeDelta compares a current observation set against a historical
// baseline. Pure and deterministic: no I/O, no clock reads.
//
// Metrics present in both sets must agree on units; a disagreement is a
// UnitMismatchError, never a silent conversion. Metrics present in only one
// set are included with Unavailable=true so callers can tell "no change"
// from "no data".
func ComputeDelta(current, historical ObservationSet) (DeltaResult, error) {
	result := make(DeltaResult, len(current.Metrics)+len(historical.Metrics))

	for name, cur := range current.Metrics {
		hist, ok := historical.Metrics[name]
		if !ok {
			result[name] = MetricDelta{
				Current:     ptr(cur.Value),
				Unit:        cur.Unit,
				Unavailable: true,
			}
			continue
		}
		if cur.Unit != hist.Unit {
			return nil, &UnitMismatchError{
				Metric:         name,
				CurrentUnit:    cur.Unit,
				HistoricalUnit: hist.Unit,
			}
		}

		delta := cur.Value - hist.Value
		md := MetricDelta{
			Current:    ptr(cur.Value),
			Historical: ptr(hist.Value),
			Delta:      ptr(delta),
			Unit:       cur.Unit,
			Assessment: assess(delta, hist.Stddev),
		}
		if hist.Value != 0 {
			md.PercentChange = ptr(delta / hist.Value)
		}
		result[name] = md
	}

	for name, hist := range historical.Metrics {
		if _, ok := current.Metrics[name]; ok {
			continue
		}
		result[name] = MetricDelta{
			Historical:  ptr(hist.Value),
			Unit:        hist.Unit,
			Unavailable: true,
		}
	}

	return result, nil
}

// assess classifies a delta against the ±1 sigma band. Returns "" when the
// baseline publishes no standard deviation.
func assess(delta, stddev float64) string {
	if stddev <= 0 {
		return ""
	}
	switch {
	case delta > stddev:
		return AssessAboveNormal
	case delta < -stddev:
		return AssessBelowNormal
	default:
		return AssessNearNormal
	}
}

func ptr(v float64) *float64 {
	return &v
}
