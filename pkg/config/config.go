package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gobangladesh/bustrack/pkg/geo"
	"github.com/gobangladesh/bustrack/pkg/location"
)

// Config represents the complete application configuration.
// Configuration is loaded from a JSON file with environment overrides.
type Config struct {
	API      APIConfig      `json:"api"`
	Map      MapConfig      `json:"map"`
	Location LocationConfig `json:"location"`
	Session  SessionConfig  `json:"session"`
	Cache    CacheConfig    `json:"cache"`
	Server   ServerConfig   `json:"server"`
}

// APIConfig contains Go Bangladesh backend settings.
type APIConfig struct {
	// BaseURL is the backend address (e.g. "https://api.thegobd.com")
	BaseURL string `json:"base_url"`

	// OrganizationID scopes every bus query
	OrganizationID string `json:"organization_id"`

	// RouteID optionally narrows bus queries to one route
	RouteID string `json:"route_id,omitempty"`

	// PollIntervalSeconds is how often to refresh bus positions
	PollIntervalSeconds int `json:"poll_interval_seconds"`

	// RequestsPerSecond caps the client's call rate against the backend.
	// 0 disables throttling.
	RequestsPerSecond float64 `json:"requests_per_second"`
}

// PollInterval returns the poll cadence as a duration.
func (c *APIConfig) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// MapConfig contains map viewport settings.
type MapConfig struct {
	// FitPadding is the fraction of extra span around fitted bounds
	FitPadding float64 `json:"fit_padding"`

	// DefaultLatitude/DefaultLongitude center the fallback viewport
	DefaultLatitude  float64 `json:"default_latitude"`
	DefaultLongitude float64 `json:"default_longitude"`
}

// DefaultRegion returns the fallback viewport centered on the configured
// coordinates, at the standard city-level span.
func (c *MapConfig) DefaultRegion() geo.Region {
	return geo.Region{
		Center:   geo.Point{Latitude: c.DefaultLatitude, Longitude: c.DefaultLongitude},
		LatDelta: geo.DefaultRegion.LatDelta,
		LonDelta: geo.DefaultRegion.LonDelta,
	}
}

// LocationConfig contains geolocation resolver settings.
type LocationConfig struct {
	// Platform is "android" or "ios"; it selects the default accuracy
	// cascade and the remediation message wording
	Platform string `json:"platform"`

	// HighTimeoutSeconds bounds the high-accuracy attempt
	HighTimeoutSeconds int `json:"high_timeout_seconds"`

	// BalancedTimeoutSeconds bounds the balanced fallback attempt
	BalancedTimeoutSeconds int `json:"balanced_timeout_seconds"`
}

// Tiers builds the resolver's accuracy cascade: the platform's default
// structure with the configured timeouts applied. Zero timeouts keep the
// platform defaults.
func (c *LocationConfig) Tiers() []location.Tier {
	tiers := location.DefaultTiers(location.Platform(c.Platform))
	for i := range tiers {
		switch tiers[i].Accuracy {
		case location.TierHigh:
			if c.HighTimeoutSeconds > 0 {
				tiers[i].Timeout = time.Duration(c.HighTimeoutSeconds) * time.Second
			}
		case location.TierBalanced:
			if c.BalancedTimeoutSeconds > 0 {
				tiers[i].Timeout = time.Duration(c.BalancedTimeoutSeconds) * time.Second
			}
		}
	}
	return tiers
}

// SessionConfig contains the on-device session store settings.
type SessionConfig struct {
	// Path is where the encrypted session file lives
	Path string `json:"path"`
}

// CacheConfig contains the local history cache settings.
type CacheConfig struct {
	// Path is the sqlite database file for trips and transactions
	Path string `json:"path"`
}

// ServerConfig contains the browser-surface server settings.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host"`
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvironmentOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()

	return &cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:             "https://api.thegobd.com",
			PollIntervalSeconds: 10,
			RequestsPerSecond:   2.0,
		},
		Map: MapConfig{
			FitPadding:       0.2,
			DefaultLatitude:  23.8103, // central Dhaka
			DefaultLongitude: 90.4125,
		},
		Location: LocationConfig{
			Platform:               "android",
			HighTimeoutSeconds:     10,
			BalancedTimeoutSeconds: 10,
		},
		Session: SessionConfig{
			Path: defaultDataPath("session.bin"),
		},
		Cache: CacheConfig{
			Path: defaultDataPath("history.db"),
		},
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
	}
}

// defaultDataPath places app data under the user config dir, falling back to
// the working directory when the OS gives us nothing.
func defaultDataPath(name string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		return name
	}
	return filepath.Join(base, "gobangladesh", name)
}

// applyEnvironmentOverrides applies environment variable overrides.
// This keeps deployment-specific values out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if baseURL := os.Getenv("GOBD_API_BASE_URL"); baseURL != "" {
		c.API.BaseURL = baseURL
	}
	if orgID := os.Getenv("GOBD_ORGANIZATION_ID"); orgID != "" {
		c.API.OrganizationID = orgID
	}
	if routeID := os.Getenv("GOBD_ROUTE_ID"); routeID != "" {
		c.API.RouteID = routeID
	}
	if interval := os.Getenv("GOBD_POLL_INTERVAL_SECONDS"); interval != "" {
		if n, err := strconv.Atoi(interval); err == nil && n > 0 {
			c.API.PollIntervalSeconds = n
		}
	}
	if port := os.Getenv("GOBD_SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if cachePath := os.Getenv("GOBD_CACHE_PATH"); cachePath != "" {
		c.Cache.Path = cachePath
	}
	if sessionPath := os.Getenv("GOBD_SESSION_PATH"); sessionPath != "" {
		c.Session.Path = sessionPath
	}
}
