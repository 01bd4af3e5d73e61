package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// IPProvider resolves a coarse position from the device's public IP address
// via ip-api.com. It stands in for the OS positioning service on desktop and
// development builds; accuracy is city-level at best, so it reports the same
// coordinates for every tier.
type IPProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewIPProvider creates an IP-geolocation provider.
// baseURL should be "http://ip-api.com" (or custom for testing).
func NewIPProvider(baseURL string) *IPProvider {
	return &IPProvider{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ServicesEnabled always reports true; IP lookup needs no OS service.
func (p *IPProvider) ServicesEnabled(ctx context.Context) (bool, error) {
	return true, nil
}

// Permission always reports granted; IP lookup needs no user consent prompt.
func (p *IPProvider) Permission(ctx context.Context) (PermissionState, error) {
	return PermissionGranted, nil
}

// RequestPermission is a no-op grant.
func (p *IPProvider) RequestPermission(ctx context.Context) (PermissionState, error) {
	return PermissionGranted, nil
}

// ipAPIResponse represents the JSON response from ip-api.com.
type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
}

// Locate queries ip-api.com for the device's approximate position.
// The requested tier does not change the result, only the caller's timeout
// bounds the wait.
func (p *IPProvider) Locate(ctx context.Context, tier AccuracyTier) (Fix, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/json", nil)
	if err != nil {
		return Fix{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Fix{}, fmt.Errorf("ip geolocation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Fix{}, fmt.Errorf("ip geolocation returned status %d", resp.StatusCode)
	}

	var apiResp ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return Fix{}, fmt.Errorf("failed to parse ip geolocation response: %w", err)
	}
	if apiResp.Status != "success" {
		return Fix{}, fmt.Errorf("ip geolocation failed: %s", apiResp.Message)
	}

	return Fix{
		Latitude:   apiResp.Lat,
		Longitude:  apiResp.Lon,
		ResolvedAt: time.Now(),
	}, nil
}
