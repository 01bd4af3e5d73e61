package transit

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

	"golang.org/x/time/rate"
)

// Client implements the DataSource interface for the Go Bangladesh backend.
// The backend wraps every response in a { data: { isSuccess, content } }
// envelope and ships coordinates as strings.
type Client struct {
	// baseURL is the API base URL (e.g. "https://api.thegobd.com")
	baseURL string

	// httpClient is the HTTP client used for API requests
	httpClient *http.Client

	// limiter throttles outgoing requests so manual refreshes cannot
	// burst past the backend's tolerance
	limiter *rate.Limiter
}

// NewClient creates a bus-position client for the given API base URL.
// requestsPerSecond bounds the outgoing request rate; zero or negative
// disables throttling.
func NewClient(baseURL string, requestsPerSecond float64) *Client {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// GetBusPositions returns all active buses for the filter's organization,
// optionally narrowed to a route. Uses the /api/bus/getAllBusMapData endpoint.
func (c *Client) GetBusPositions(filter Filter) ([]BusPosition, error) {
	if err := c.limiter.Wait(context.Background()); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("organizationId", filter.OrganizationID)
	if filter.RouteID != "" {
		q.Set("routeId", filter.RouteID)
	}
	reqURL := fmt.Sprintf("%s/api/bus/getAllBusMapData?%s", c.baseURL, q.Encode())

	resp, err := c.httpClient.Get(reqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bus positions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	var apiResp busMapDataResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse API response: %w", err)
	}

	if !apiResp.Data.IsSuccess {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    "backend reported isSuccess=false",
		}
	}

	buses := make([]BusPosition, 0, len(apiResp.Data.Content))
	seen := make(map[string]bool, len(apiResp.Data.Content))
	for _, entry := range apiResp.Data.Content {
		bus, ok := convertBusEntry(entry)
		if !ok {
			continue
		}
		// Backend occasionally repeats a bus; keep the first occurrence
		// so BusID stays unique within a batch.
		if seen[bus.BusID] {
			continue
		}
		seen[bus.BusID] = true
		buses = append(buses, bus)
	}

	return buses, nil
}

// Close cleanly shuts down the client.
// There are no persistent connections, so this is a no-op.
func (c *Client) Close() error {
	return nil
}

// busMapDataResponse represents the JSON envelope from getAllBusMapData.
type busMapDataResponse struct {
	Data struct {
		IsSuccess bool          `json:"isSuccess"`
		Message   string        `json:"message"`
		Content   []busMapEntry `json:"content"`
	} `json:"data"`
}

// busMapEntry represents a single bus in the backend payload.
// Coordinates arrive as strings and must be parsed.
type busMapEntry struct {
	ID               string `json:"id"`
	BusNumber        string `json:"busNumber"`
	BusName          string `json:"busName"`
	OrganizationName string `json:"organizationName"`
	PresentLatitude  string `json:"presentLatitude"`
	PresentLongitude string `json:"presentLongitude"`
}

// convertBusEntry parses a backend entry into a BusPosition.
// Entries with missing ids or non-numeric coordinates are rejected.
func convertBusEntry(entry busMapEntry) (BusPosition, bool) {
	if entry.ID == "" {
		return BusPosition{}, false
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(entry.PresentLatitude), 64)
	if err != nil {
		return BusPosition{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(entry.PresentLongitude), 64)
	if err != nil {
		return BusPosition{}, false
	}

	return BusPosition{
		BusID:            entry.ID,
		BusNumber:        entry.BusNumber,
		BusName:          entry.BusName,
		OrganizationName: entry.OrganizationName,
		Latitude:         lat,
		Longitude:        lon,
	}, true
}

// APIError represents a non-2xx or failed-envelope backend response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API returned status %d", e.StatusCode)
}

// IsAPIError checks if an error is a backend API error.
func IsAPIError(err error) (*APIError, bool) {
	if ae, ok := err.(*APIError); ok {
		return ae, true
	}
	return nil, false
}
