// Package config provides centralized configuration management for meshgate.
// Defaults are registered on a viper instance, which also reads the optional
// YAML file and MESHGATE_* environment variables; short-form environment
// aliases are applied on top through gofulmen/config env specs.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/meshrider/meshgate/internal/appid"
	"github.com/meshrider/meshgate/internal/trust"
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetDefaults registers every configuration key with its default value. Keys
// must be registered for viper to resolve them from the environment.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Gateway defaults
	v.SetDefault("gateway.default_target", "10.223.106.148")
	v.SetDefault("gateway.ubus.scheme", "http")
	v.SetDefault("gateway.ubus.path", "/ubus")
	v.SetDefault("gateway.ubus.timeout", "5s")
	v.SetDefault("gateway.rate_limit.requests", 60)
	v.SetDefault("gateway.rate_limit.window", "1m")
	v.SetDefault("gateway.rate_limit.max_clients", 10000)
	v.SetDefault("gateway.rate_limit.sweep_interval", "1m")
	v.SetDefault("gateway.passthrough.enabled", true)
	v.SetDefault("gateway.passthrough.scheme", "https")
	v.SetDefault("gateway.passthrough.rate_limited", false)
	v.SetDefault("gateway.passthrough.timeout", "0s")
	v.SetDefault("gateway.cors.allow_origin", "*")

	// Device trust defaults
	v.SetDefault("trust.mode", string(trust.ModeInsecure))
	v.SetDefault("trust.pins", []map[string]any{})
	v.SetDefault("trust.dns_cache_ttl", "5m")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Chat defaults
	v.SetDefault("chat.provider", "openai")
	v.SetDefault("chat.base_url", "https://api.openai.com/v1")
	v.SetDefault("chat.model", "gpt-4o-mini")
	v.SetDefault("chat.timeout", "60s")
	v.SetDefault("chat.api_key_env", "OPENAI_API_KEY")
}

// BindEnvironment makes every registered key resolvable from
// {PREFIX}_{KEY} with dots replaced by underscores.
func BindEnvironment(v *viper.Viper, prefix string) {
	v.SetEnvPrefix(strings.TrimSuffix(prefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load resolves configuration from v (defaults, file and environment already
// attached) plus the short-form env aliases, then validates the result.
func Load(ctx context.Context, v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("viper instance is required")
	}

	identity, err := appid.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load app identity: %w", err)
	}

	merged := v.AllSettings()

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs(identity.EnvPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	mergeMaps(merged, envOverrides)

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port)
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Profile)) {
	case "", "simple", "structured":
	default:
		return fmt.Errorf("logging.profile must be simple or structured, got %q", c.Logging.Profile)
	}

	if err := validateScheme("gateway.ubus.scheme", c.Gateway.Ubus.Scheme); err != nil {
		return err
	}
	if err := validateScheme("gateway.passthrough.scheme", c.Gateway.Passthrough.Scheme); err != nil {
		return err
	}
	if c.Gateway.Ubus.Timeout < 0 || c.Gateway.Passthrough.Timeout < 0 {
		return errors.New("gateway timeouts must not be negative")
	}

	rl := c.Gateway.RateLimit
	if rl.Requests <= 0 {
		return fmt.Errorf("gateway.rate_limit.requests must be positive, got %d", rl.Requests)
	}
	if rl.Window <= 0 {
		return fmt.Errorf("gateway.rate_limit.window must be positive, got %s", rl.Window)
	}
	if rl.MaxClients <= 0 {
		return fmt.Errorf("gateway.rate_limit.max_clients must be positive, got %d", rl.MaxClients)
	}
	if rl.SweepInterval < 0 {
		return errors.New("gateway.rate_limit.sweep_interval must not be negative")
	}

	mode, err := trust.ParseMode(c.Trust.Mode)
	if err != nil {
		return fmt.Errorf("trust.mode: %w", err)
	}
	for i, pin := range c.Trust.Pins {
		if strings.TrimSpace(pin.Host) == "" {
			return fmt.Errorf("trust.pins[%d]: host is required", i)
		}
		if _, err := trust.NormalizeFingerprint(pin.Fingerprint); err != nil {
			return fmt.Errorf("trust.pins[%d] (%s): %w", i, pin.Host, err)
		}
	}
	c.Trust.Mode = string(mode)

	if base := strings.TrimSpace(c.Chat.BaseURL); base != "" {
		if _, err := url.ParseRequestURI(base); err != nil {
			return fmt.Errorf("chat.base_url: %w", err)
		}
	}
	if c.Chat.Timeout < 0 {
		return errors.New("chat.timeout must not be negative")
	}

	return nil
}

func validateScheme(key, scheme string) error {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "", "http", "https":
		return nil
	default:
		return fmt.Errorf("%s must be http or https, got %q", key, scheme)
	}
}

// getEnvSpecs returns the short-form environment aliases. Long forms
// (MESHGATE_GATEWAY_UBUS_TIMEOUT and so on) are resolved by viper.
func getEnvSpecs(prefix string) []EnvVarSpec {
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}

	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},

		// Logging config
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Gateway config
		{Name: prefix + "TARGET", Path: []string{"gateway", "default_target"}, Type: EnvString},
		{Name: prefix + "UBUS_TIMEOUT", Path: []string{"gateway", "ubus", "timeout"}, Type: EnvString},
		{Name: prefix + "RATE_LIMIT", Path: []string{"gateway", "rate_limit", "requests"}, Type: EnvInt},
		{Name: prefix + "CORS_ORIGIN", Path: []string{"gateway", "cors", "allow_origin"}, Type: EnvString},

		// Trust config
		{Name: prefix + "TRUST_MODE", Path: []string{"trust", "mode"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Chat config
		{Name: prefix + "CHAT_MODEL", Path: []string{"chat", "model"}, Type: EnvString},
		{Name: prefix + "CHAT_BASE_URL", Path: []string{"chat", "base_url"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},
	}
}

func mergeMaps(dst, src map[string]any) {
	for key, value := range src {
		srcMap, ok := value.(map[string]any)
		if !ok {
			dst[key] = value
			continue
		}
		dstMap, ok := dst[key].(map[string]any)
		if !ok {
			dstMap = map[string]any{}
			dst[key] = dstMap
		}
		mergeMaps(dstMap, srcMap)
	}
}

func appNamesForPaths() (configName string, binaryName string) {
	configName = "meshgate"
	binaryName = "meshgate"

	identity, err := appid.Get(context.Background())
	if err != nil || identity == nil {
		return configName, binaryName
	}
	if strings.TrimSpace(identity.ConfigName) != "" {
		configName = identity.ConfigName
	}
	if strings.TrimSpace(identity.BinaryName) != "" {
		binaryName = identity.BinaryName
	}
	return configName, binaryName
}

// DefaultConfigDir returns the XDG-compliant config directory for the app.
func DefaultConfigDir() string {
	configName, _ := appNamesForPaths()
	return gfconfig.GetAppConfigDir(configName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	configName, binaryName := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dataDir, binaryName+".db")
}
