// Package config provides configuration loading for marketd.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/marketd/internal/logging"
)

// Config is the full marketd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Log         logging.Config    `koanf:"log"`
	NATS        NATSConfig        `koanf:"nats"`
	Marketplace MarketplaceConfig `koanf:"marketplace"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// NATSConfig selects and tunes the log backend. With Embedded set, marketd
// runs its own JetStream-enabled server and ignores URL.
type NATSConfig struct {
	URL      string `koanf:"url"`
	Embedded bool   `koanf:"embedded"`
	StoreDir string `koanf:"store_dir"`
	Stream   string `koanf:"stream"`
}

// MarketplaceConfig holds the session accounts and orchestration timing.
type MarketplaceConfig struct {
	Asset            string `koanf:"asset"`
	TreasuryAccount  string `koanf:"treasury_account"`
	EscrowAccount    string `koanf:"escrow_account"`
	AnalystAccount   string `koanf:"analyst_account"`
	ArchitectAccount string `koanf:"architect_account"`

	// TreasuryFunds is minted to the treasury at startup so escrow locks
	// have something to draw on.
	TreasuryFunds int64 `koanf:"treasury_funds"`

	PollInterval time.Duration `koanf:"poll_interval"`
	BidTimeout   time.Duration `koanf:"bid_timeout"`
	WorkTimeout  time.Duration `koanf:"work_timeout"`
	SettleDelay  time.Duration `koanf:"settle_delay"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.Stream == "" {
		cfg.NATS.Stream = "MARKETPLACE"
	}

	if cfg.Marketplace.Asset == "" {
		cfg.Marketplace.Asset = "USDC"
	}
	if cfg.Marketplace.TreasuryAccount == "" {
		cfg.Marketplace.TreasuryAccount = "treasury"
	}
	if cfg.Marketplace.EscrowAccount == "" {
		cfg.Marketplace.EscrowAccount = "escrow"
	}
	if cfg.Marketplace.AnalystAccount == "" {
		cfg.Marketplace.AnalystAccount = "agent-analyst"
	}
	if cfg.Marketplace.ArchitectAccount == "" {
		cfg.Marketplace.ArchitectAccount = "agent-architect"
	}
	if cfg.Marketplace.TreasuryFunds == 0 {
		cfg.Marketplace.TreasuryFunds = 1_000_000
	}
	if cfg.Marketplace.PollInterval == 0 {
		cfg.Marketplace.PollInterval = 5 * time.Second
	}
	if cfg.Marketplace.BidTimeout == 0 {
		cfg.Marketplace.BidTimeout = 5 * time.Minute
	}
	if cfg.Marketplace.WorkTimeout == 0 {
		cfg.Marketplace.WorkTimeout = 5 * time.Minute
	}
	if cfg.Marketplace.SettleDelay == 0 {
		cfg.Marketplace.SettleDelay = 6 * time.Second
	}
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.NATS.Stream == "" {
		return fmt.Errorf("nats.stream must not be empty")
	}
	if c.Marketplace.TreasuryFunds < 0 {
		return fmt.Errorf("marketplace.treasury_funds must not be negative, got %d", c.Marketplace.TreasuryFunds)
	}

	accounts := map[string]string{
		"marketplace.treasury_account":  c.Marketplace.TreasuryAccount,
		"marketplace.escrow_account":    c.Marketplace.EscrowAccount,
		"marketplace.analyst_account":   c.Marketplace.AnalystAccount,
		"marketplace.architect_account": c.Marketplace.ArchitectAccount,
	}
	seen := make(map[string]string, len(accounts))
	for field, account := range accounts {
		if account == "" {
			return fmt.Errorf("%s must not be empty", field)
		}
		if other, dup := seen[account]; dup {
			return fmt.Errorf("%s and %s must name different accounts, both are %q", field, other, account)
		}
		seen[account] = field
	}
	return nil
}
