package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "MARKETPLACE", cfg.NATS.Stream)
	assert.Equal(t, "USDC", cfg.Marketplace.Asset)
	assert.Equal(t, "escrow", cfg.Marketplace.EscrowAccount)
	assert.Equal(t, int64(1_000_000), cfg.Marketplace.TreasuryFunds)
	assert.Equal(t, 5*time.Second, cfg.Marketplace.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Marketplace.BidTimeout)
	assert.Equal(t, 6*time.Second, cfg.Marketplace.SettleDelay)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9000
  shutdown_timeout: 3s
nats:
  embedded: true
  stream: MARKETD_TEST
marketplace:
  asset: HBAR
  bid_timeout: 90s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.NATS.Embedded)
	assert.Equal(t, "MARKETD_TEST", cfg.NATS.Stream)
	assert.Equal(t, "HBAR", cfg.Marketplace.Asset)
	assert.Equal(t, 90*time.Second, cfg.Marketplace.BidTimeout)

	// Untouched fields keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "escrow", cfg.Marketplace.EscrowAccount)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9000
`)

	t.Setenv("MARKETD_SERVER_PORT", "9001")
	t.Setenv("MARKETD_NATS_URL", "nats://example.org:4222")
	t.Setenv("MARKETD_MARKETPLACE_POLL_INTERVAL", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "nats://example.org:4222", cfg.NATS.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Marketplace.PollInterval)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8787, cfg.Server.Port)
}

func TestLoad_RejectsWorldReadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_RejectsInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a map")

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"port too low", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log"},
		{"empty stream", func(c *Config) { c.NATS.Stream = "" }, "nats.stream"},
		{"negative treasury", func(c *Config) { c.Marketplace.TreasuryFunds = -1 }, "treasury_funds"},
		{"empty account", func(c *Config) { c.Marketplace.EscrowAccount = "" }, "escrow_account"},
		{"duplicate accounts", func(c *Config) {
			c.Marketplace.EscrowAccount = "same"
			c.Marketplace.AnalystAccount = "same"
		}, "different accounts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
