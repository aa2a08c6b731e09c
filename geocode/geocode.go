// Package geocode resolves free-text place names to coordinates.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/liamcoop/fairprice/advisor"
)

var (
	// ErrNotFound means the provider answered but had no result for the query.
	ErrNotFound = errors.New("geocode: not found")
	// ErrUnavailable means the provider could not be reached or answered with an error.
	ErrUnavailable = errors.New("geocode: service unavailable")
)

// Result is a single geocoding hit.
type Result struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name"`
}

// Point returns the result location.
func (r Result) Point() advisor.Point {
	return advisor.Point{Lat: r.Lat, Lon: r.Lon}
}

// Name returns the short form of the display name.
func (r Result) Name() string {
	return ShortName(r.DisplayName)
}

// Geocoder searches places by free text.
type Geocoder interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Bias narrows searches to a city and country.
type Bias struct {
	Suffix       string `json:"suffix" yaml:"suffix"`
	CountryCodes string `json:"country_codes" yaml:"country_codes"`
}

// Apply appends the suffix to a query.
func (b Bias) Apply(query string) string {
	if b.Suffix == "" {
		return query
	}
	return query + ", " + b.Suffix
}

// Lookup returns the first result for query.
func Lookup(ctx context.Context, g Geocoder, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, fmt.Errorf("%w: empty query", ErrNotFound)
	}
	results, err := g.Search(ctx, query)
	if err != nil {
		return Result{}, err
	}
	if len(results) == 0 {
		return Result{}, fmt.Errorf("%w: %q", ErrNotFound, query)
	}
	return results[0], nil
}

// ShortName returns the text before the first comma of a display name.
func ShortName(display string) string {
	name, _, _ := strings.Cut(display, ",")
	return strings.TrimSpace(name)
}

// parseLatLon returns lat,lon if query looks like "lat,lon" (WGS84).
func parseLatLon(query string) (float64, float64, bool) {
	q := strings.TrimSpace(query)
	sep := ","
	if strings.Contains(q, ";") {
		sep = ";"
	}
	parts := strings.Split(q, sep)
	if len(parts) != 2 {
		return 0, 0, false
	}

	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return 0, 0, false
	}
	return lat, lon, true
}
