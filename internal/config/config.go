// Package config loads agent configuration from YAML files and environment
// variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIConfig holds settings for the remote REST API.
type APIConfig struct {
	// BaseURL is the root URL of the patient queue API.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec is the per-request timeout in seconds.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// WebSocketConfig holds settings for the push notification connection.
type WebSocketConfig struct {
	// URL is the WebSocket endpoint. When empty it is derived from the
	// API base URL (http -> ws, https -> wss, path /ws).
	URL string `mapstructure:"url" yaml:"url"`

	// ReconnectIntervalMs is the base delay between reconnect attempts.
	ReconnectIntervalMs int `mapstructure:"reconnect_interval_ms" yaml:"reconnect_interval_ms"`

	// MaxReconnectAttempts is how many consecutive failures are tolerated
	// before reconnection stops until the next online transition.
	MaxReconnectAttempts int `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
}

// ConnectivityConfig holds settings for online/offline detection.
type ConnectivityConfig struct {
	// ProbeIntervalSec is how often (in seconds) to probe the API health
	// endpoint.
	ProbeIntervalSec int `mapstructure:"probe_interval_sec" yaml:"probe_interval_sec"`

	// SyncIntervalSec is how often (in seconds) to trigger a fallback sync
	// pass while online.
	SyncIntervalSec int `mapstructure:"sync_interval_sec" yaml:"sync_interval_sec"`
}

// AuthConfig holds the credentials shared by the REST and WebSocket clients.
type AuthConfig struct {
	UserID string `mapstructure:"user_id" yaml:"user_id"`
	Token  string `mapstructure:"token" yaml:"token"`
}

// Config is the top-level agent configuration.
type Config struct {
	API          APIConfig          `mapstructure:"api" yaml:"api"`
	WebSocket    WebSocketConfig    `mapstructure:"websocket" yaml:"websocket"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity" yaml:"connectivity"`
	Auth         AuthConfig         `mapstructure:"auth" yaml:"auth"`
	DataDir      string             `mapstructure:"data_dir" yaml:"data_dir"`
	LogLevel     string             `mapstructure:"log_level" yaml:"log_level"`
}

// APITimeout returns the request timeout as a duration.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

// ProbeInterval returns the connectivity probe interval as a duration.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Connectivity.ProbeIntervalSec) * time.Second
}

// SyncInterval returns the fallback sync interval as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Connectivity.SyncIntervalSec) * time.Second
}

// ReconnectInterval returns the base reconnect delay as a duration.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.WebSocket.ReconnectIntervalMs) * time.Millisecond
}

// Load reads configuration from the given YAML file path using Viper.
// A missing file is not an error; defaults and environment overrides
// (prefix PATIENTQUEUE, dots replaced by underscores) still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout_sec", 10)
	v.SetDefault("websocket.url", "")
	v.SetDefault("websocket.reconnect_interval_ms", 3000)
	v.SetDefault("websocket.max_reconnect_attempts", 5)
	v.SetDefault("connectivity.probe_interval_sec", 15)
	v.SetDefault("connectivity.sync_interval_sec", 60)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("PATIENTQUEUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file falls back to defaults; anything else is fatal.
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.WebSocket.URL == "" {
		derived, err := DeriveWebSocketURL(cfg.API.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("deriving websocket url: %w", err)
		}
		cfg.WebSocket.URL = derived
	}

	return &cfg, nil
}

// DeriveWebSocketURL converts an HTTP API base URL into the default
// WebSocket endpoint on the same origin.
func DeriveWebSocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing API base url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// Already a websocket URL.
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}
