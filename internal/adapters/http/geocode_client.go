package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/truliv/voice-agent/pkg/logger"
)

// GeocodeClient handles communication with the Google Geocoding API
type GeocodeClient struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// GeocodeResponse represents the subset of the geocoding response we read
type GeocodeResponse struct {
	Status  string          `json:"status"`
	Results []GeocodeResult `json:"results"`
}

// GeocodeResult represents one geocoding candidate
type GeocodeResult struct {
	FormattedAddress string `json:"formatted_address"`
	Geometry         struct {
		Location struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

// Found reports whether the response carries a usable first result.
func (r *GeocodeResponse) Found() bool {
	return r != nil && r.Status == "OK" && len(r.Results) > 0
}

// Coordinates returns latitude and longitude as text; absent values are empty.
func (r GeocodeResult) Coordinates() (string, string) {
	return formatCoordinate(r.Geometry.Location.Lat), formatCoordinate(r.Geometry.Location.Lng)
}

func formatCoordinate(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// NewGeocodeClient creates a new geocoding client
func NewGeocodeClient(endpoint, apiKey string, timeout time.Duration) *GeocodeClient {
	if apiKey == "" {
		logger.Base().Warn("Google Maps API key not configured, location lookups will apologise")
	}
	return &GeocodeClient{
		URL:        endpoint,
		APIKey:     apiKey,
		HTTPClient: newHTTPClient(timeout),
	}
}

// Geocode resolves a free-form address. A non-OK status is not an error;
// callers inspect Found.
func (c *GeocodeClient) Geocode(ctx context.Context, address string) (*GeocodeResponse, error) {
	const endpoint = "geocode"
	if c.APIKey == "" || c.URL == "" {
		return nil, &LookupError{Kind: FailureUnconfigured, Endpoint: endpoint}
	}

	query := url.Values{}
	query.Set("address", address)
	query.Set("key", c.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, &LookupError{Kind: FailureNetwork, Endpoint: endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	var resp GeocodeResponse
	if err := getJSON(ctx, c.HTTPClient, endpoint, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
