package config

import (
	"time"
)

// Config represents the complete application configuration. Values come from
// built-in defaults, an optional YAML file, then environment variables.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Trust   TrustConfig   `mapstructure:"trust"`
	Store   StoreConfig   `mapstructure:"store"`
	Chat    ChatConfig    `mapstructure:"chat"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects console (simple) or JSON (structured) output.
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}

// GatewayConfig configures the device relay routes.
type GatewayConfig struct {
	// DefaultTarget is used when a request carries no X-Target-IP header.
	DefaultTarget string            `mapstructure:"default_target"`
	Ubus          UbusConfig        `mapstructure:"ubus"`
	RateLimit     RateLimitConfig   `mapstructure:"rate_limit"`
	Passthrough   PassthroughConfig `mapstructure:"passthrough"`
	CORS          CORSConfig        `mapstructure:"cors"`
}

// UbusConfig configures the ubus JSON-RPC route.
type UbusConfig struct {
	Scheme  string        `mapstructure:"scheme"`
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig configures the per-caller sliding window.
type RateLimitConfig struct {
	Requests      int           `mapstructure:"requests"`
	Window        time.Duration `mapstructure:"window"`
	MaxClients    int           `mapstructure:"max_clients"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// PassthroughConfig configures the generic path relay.
type PassthroughConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Scheme      string        `mapstructure:"scheme"`
	RateLimited bool          `mapstructure:"rate_limited"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// CORSConfig configures browser access headers on /api routes.
type CORSConfig struct {
	AllowOrigin string `mapstructure:"allow_origin"`
}

// TrustConfig selects how device TLS certificates are checked.
type TrustConfig struct {
	// Mode is insecure, pinned or verify.
	Mode        string        `mapstructure:"mode"`
	Pins        []PinConfig   `mapstructure:"pins"`
	DNSCacheTTL time.Duration `mapstructure:"dns_cache_ttl"`
}

// PinConfig binds a device host to a certificate fingerprint.
type PinConfig struct {
	Host        string `mapstructure:"host"`
	Fingerprint string `mapstructure:"fingerprint"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// ChatConfig configures the completion provider behind /api/chat.
//
// The API key itself is never stored in config; APIKeyEnv names the
// environment variable that holds it.
type ChatConfig struct {
	Provider  string        `mapstructure:"provider"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	APIKeyEnv string        `mapstructure:"api_key_env"`
}

// PinMap flattens configured pins into host -> fingerprint.
func (t TrustConfig) PinMap() map[string]string {
	pins := make(map[string]string, len(t.Pins))
	for _, pin := range t.Pins {
		pins[pin.Host] = pin.Fingerprint
	}
	return pins
}
