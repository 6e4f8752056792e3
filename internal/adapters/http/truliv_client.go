package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

// TrulivClient handles communication with the Truliv property API
type TrulivClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Property represents one entry of GET /properties
type Property struct {
	ID            FlexString `json:"id"`
	Name          FlexString `json:"name"`
	Area          FlexString `json:"area"`
	City          FlexString `json:"city"`
	StartingPrice FlexString `json:"starting_price"`
}

// Availability represents one room or bed type of a property
type Availability struct {
	Type           FlexString `json:"type"`
	AvailableCount FlexString `json:"available_count"`
	Price          FlexString `json:"price"`
}

// NewTrulivClient creates a new Truliv API client
func NewTrulivClient(baseURL, apiKey string, timeout time.Duration) *TrulivClient {
	client := &TrulivClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: newHTTPClient(timeout),
	}

	if !client.Configured() {
		logger.Base().Warn("Truliv API not configured, property lookups will apologise",
			zap.Bool("has_base_url", client.BaseURL != ""),
			zap.Bool("has_api_key", client.APIKey != ""))
	}

	return client
}

// Configured reports whether both the base URL and the API key are set.
func (c *TrulivClient) Configured() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

// ListProperties lists properties in a city, optionally narrowed to an area.
// Both query parameters are always sent.
func (c *TrulivClient) ListProperties(ctx context.Context, city, area string) ([]Property, error) {
	const endpoint = "properties"
	if !c.Configured() {
		return nil, &LookupError{Kind: FailureUnconfigured, Endpoint: endpoint}
	}

	query := url.Values{}
	query.Set("city", city)
	query.Set("area", area)

	req, err := c.newRequest(ctx, "/properties?"+query.Encode())
	if err != nil {
		return nil, &LookupError{Kind: FailureNetwork, Endpoint: endpoint, Err: err}
	}

	var properties []Property
	if err := getJSON(ctx, c.HTTPClient, endpoint, req, &properties); err != nil {
		return nil, err
	}
	return properties, nil
}

// ListRooms lists room availability for a property.
func (c *TrulivClient) ListRooms(ctx context.Context, propertyID string) ([]Availability, error) {
	return c.listAvailability(ctx, "rooms", propertyID)
}

// ListBeds lists bed availability for a property.
func (c *TrulivClient) ListBeds(ctx context.Context, propertyID string) ([]Availability, error) {
	return c.listAvailability(ctx, "beds", propertyID)
}

func (c *TrulivClient) listAvailability(ctx context.Context, kind, propertyID string) ([]Availability, error) {
	endpoint := "properties/" + kind
	if !c.Configured() {
		return nil, &LookupError{Kind: FailureUnconfigured, Endpoint: endpoint}
	}

	req, err := c.newRequest(ctx, fmt.Sprintf("/properties/%s/%s", url.PathEscape(propertyID), kind))
	if err != nil {
		return nil, &LookupError{Kind: FailureNetwork, Endpoint: endpoint, Err: err}
	}

	var items []Availability
	if err := getJSON(ctx, c.HTTPClient, endpoint, req, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *TrulivClient) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}
