package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultNominatimURL is the public OpenStreetMap instance.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// Nominatim queries an OpenStreetMap Nominatim server.
type Nominatim struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	bias       Bias
}

// NewNominatim constructs a client. The public instance rejects requests
// without a User-Agent.
func NewNominatim(httpClient *http.Client, baseURL, userAgent string) *Nominatim {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	return &Nominatim{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
	}
}

// WithBias returns a copy of the client that searches within b.
func (n *Nominatim) WithBias(b Bias) *Nominatim {
	c := *n
	c.bias = b
	return &c
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Search returns at most one result. A "lat,lon" query is answered locally.
func (n *Nominatim) Search(ctx context.Context, query string) ([]Result, error) {
	if lat, lon, ok := parseLatLon(query); ok {
		return []Result{{Lat: lat, Lon: lon, DisplayName: strings.TrimSpace(query)}}, nil
	}

	params := url.Values{}
	params.Set("q", n.bias.Apply(query))
	params.Set("format", "json")
	params.Set("limit", "1")
	if n.bias.CountryCodes != "" {
		params.Set("countrycodes", n.bias.CountryCodes)
	}

	endpoint := fmt.Sprintf("%s/search?%s", n.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("geocode: build request: %w", err)
	}
	if n.userAgent != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: http %s: %s", ErrUnavailable, resp.Status, strings.TrimSpace(string(b)))
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	results := make([]Result, 0, len(places))
	for _, p := range places {
		lat, err1 := strconv.ParseFloat(p.Lat, 64)
		lon, err2 := strconv.ParseFloat(p.Lon, 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: bad coordinates %q,%q", ErrUnavailable, p.Lat, p.Lon)
		}
		results = append(results, Result{Lat: lat, Lon: lon, DisplayName: p.DisplayName})
	}
	return results, nil
}
