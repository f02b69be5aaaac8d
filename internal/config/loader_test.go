package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnvironment(v, "MESHGATE_")
	return v
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", t.TempDir())

		cfg, err := Load(ctx, newViper())
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify gateway defaults
		assert.Equal(t, "10.223.106.148", cfg.Gateway.DefaultTarget)
		assert.Equal(t, "http", cfg.Gateway.Ubus.Scheme)
		assert.Equal(t, "/ubus", cfg.Gateway.Ubus.Path)
		assert.Equal(t, 5*time.Second, cfg.Gateway.Ubus.Timeout)
		assert.Equal(t, 60, cfg.Gateway.RateLimit.Requests)
		assert.Equal(t, time.Minute, cfg.Gateway.RateLimit.Window)
		assert.Equal(t, 10000, cfg.Gateway.RateLimit.MaxClients)
		assert.Equal(t, time.Minute, cfg.Gateway.RateLimit.SweepInterval)
		assert.True(t, cfg.Gateway.Passthrough.Enabled)
		assert.Equal(t, "https", cfg.Gateway.Passthrough.Scheme)
		assert.False(t, cfg.Gateway.Passthrough.RateLimited)
		assert.Zero(t, cfg.Gateway.Passthrough.Timeout)
		assert.Equal(t, "*", cfg.Gateway.CORS.AllowOrigin)

		// Verify trust defaults
		assert.Equal(t, "insecure", cfg.Trust.Mode)
		assert.Empty(t, cfg.Trust.Pins)
		assert.Equal(t, 5*time.Minute, cfg.Trust.DNSCacheTTL)

		// Verify store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir("meshgate"), "meshgate.db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)

		// Verify chat defaults
		assert.Equal(t, "gpt-4o-mini", cfg.Chat.Model)
		assert.Equal(t, 60*time.Second, cfg.Chat.Timeout)
		assert.Equal(t, "OPENAI_API_KEY", cfg.Chat.APIKeyEnv)

		// Verify logging, metrics and health defaults
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.True(t, cfg.Health.Enabled)
	})

	t.Run("LongFormEnvironment", func(t *testing.T) {
		t.Setenv("MESHGATE_GATEWAY_UBUS_TIMEOUT", "250ms")
		t.Setenv("MESHGATE_GATEWAY_PASSTHROUGH_RATE_LIMITED", "true")
		t.Setenv("MESHGATE_SERVER_PORT", "9443")

		cfg, err := Load(ctx, newViper())
		require.NoError(t, err)
		assert.Equal(t, 250*time.Millisecond, cfg.Gateway.Ubus.Timeout)
		assert.True(t, cfg.Gateway.Passthrough.RateLimited)
		assert.Equal(t, 9443, cfg.Server.Port)
	})

	t.Run("ShortFormAliases", func(t *testing.T) {
		t.Setenv("MESHGATE_PORT", "7070")
		t.Setenv("MESHGATE_TARGET", "192.168.100.1")
		t.Setenv("MESHGATE_TRUST_MODE", "verify")
		t.Setenv("MESHGATE_LOG_LEVEL", "debug")

		cfg, err := Load(ctx, newViper())
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, "192.168.100.1", cfg.Gateway.DefaultTarget)
		assert.Equal(t, "verify", cfg.Trust.Mode)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		fp := strings.Repeat("ab", 32)
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
gateway:
  default_target: 10.0.0.9
  rate_limit:
    requests: 5
trust:
  mode: pinned
  pins:
    - host: 10.0.0.9
      fingerprint: "sha256:` + strings.ToUpper(fp) + `"
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		v := newViper()
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())

		cfg, err := Load(ctx, v)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.9", cfg.Gateway.DefaultTarget)
		assert.Equal(t, 5, cfg.Gateway.RateLimit.Requests)
		assert.Equal(t, "pinned", cfg.Trust.Mode)
		require.Len(t, cfg.Trust.Pins, 1)
		assert.Equal(t, map[string]string{"10.0.0.9": "sha256:" + strings.ToUpper(fp)}, cfg.Trust.PinMap())
	})

	t.Run("NilViper", func(t *testing.T) {
		_, err := Load(ctx, nil)
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		key  string
		val  any
	}{
		{name: "bad trust mode", key: "trust.mode", val: "tofu"},
		{name: "bad ubus scheme", key: "gateway.ubus.scheme", val: "ftp"},
		{name: "zero quota", key: "gateway.rate_limit.requests", val: 0},
		{name: "zero window", key: "gateway.rate_limit.window", val: "0s"},
		{name: "negative timeout", key: "gateway.ubus.timeout", val: "-1s"},
		{name: "bad profile", key: "logging.profile", val: "enterprise"},
		{name: "bad port", key: "server.port", val: 70000},
		{name: "bad pin", key: "trust.pins", val: []map[string]any{{"host": "10.0.0.1", "fingerprint": "abc"}}},
		{name: "pin without host", key: "trust.pins", val: []map[string]any{{"fingerprint": strings.Repeat("ab", 32)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			v.Set(tt.key, tt.val)
			_, err := Load(ctx, v)
			require.Error(t, err)
		})
	}
}

func TestDefaultStorePathUsesDataHome(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	assert.True(t, strings.HasSuffix(DefaultStorePath(), "meshgate.db"))
}
