package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// QueryKind discriminates the two accepted input forms.
type QueryKind int

const (
	// QueryPostalCode is a US ZIP code ("30306").
	QueryPostalCode QueryKind = iota
	// QueryCityState is a "City, ST" pair; the state part is optional.
	QueryCityState
)

// LocationQuery is the normalized form of one raw user-supplied location
// string. It exists only for the duration of a single request.
type LocationQuery struct {
	Raw        string
	Kind       QueryKind
	PostalCode string
	City       string
	State      string
}

// CacheKey returns a stable key for the normalized query, suitable for
// read-mostly geocoding caches.
func (q LocationQuery) CacheKey() string {
	if q.Kind == QueryPostalCode {
		return "zip:" + q.PostalCode
	}
	return "city:" + q.City + "|" + q.State
}

func (q LocationQuery) String() string {
	if q.Kind == QueryPostalCode {
		return q.PostalCode
	}
	if q.State == "" {
		return q.City
	}
	return q.City + ", " + q.State
}

// ParseLocationQuery normalizes a raw location string into a LocationQuery.
//
// Input that is digits (optionally with spaces or a ZIP+4 suffix) is treated
// as a postal code: non-digits are stripped, ZIP+4 is truncated to the
// 5-digit prefix, and anything that does not leave exactly 5 digits is an
// AmbiguousInputError. Anything else is treated as "City" or "City, ST":
// the city is trimmed and uppercased for lookup, the state code uppercased.
func ParseLocationQuery(raw string) (LocationQuery, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return LocationQuery{}, &AmbiguousInputError{Input: raw, Reason: "empty input"}
	}

	if looksNumeric(trimmed) {
		digits := stripNonDigits(trimmed)
		if len(digits) == 9 {
			// ZIP+4 written without the hyphen.
			digits = digits[:5]
		}
		if len(digits) != 5 {
			return LocationQuery{}, &AmbiguousInputError{
				Input:  raw,
				Reason: fmt.Sprintf("postal code must have 5 digits, got %d", len(digits)),
			}
		}
		return LocationQuery{Raw: raw, Kind: QueryPostalCode, PostalCode: digits}, nil
	}

	city, state := trimmed, ""
	if i := strings.Index(trimmed, ","); i >= 0 {
		city = strings.TrimSpace(trimmed[:i])
		state = strings.TrimSpace(trimmed[i+1:])
	}
	if city == "" {
		return LocationQuery{}, &AmbiguousInputError{Input: raw, Reason: "empty city name"}
	}
	if state != "" && len(state) != 2 {
		return LocationQuery{}, &AmbiguousInputError{
			Input:  raw,
			Reason: fmt.Sprintf("state must be a 2-letter code, got %q", state),
		}
	}

	return LocationQuery{
		Raw:   raw,
		Kind:  QueryCityState,
		City:  strings.ToUpper(city),
		State: strings.ToUpper(state),
	}, nil
}

// looksNumeric reports whether the input is a postal-code attempt: at least
// one digit and nothing but digits, spaces, and hyphens.
func looksNumeric(s string) bool {
	hasDigit := false
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	return hasDigit
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
