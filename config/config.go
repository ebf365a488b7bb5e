package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full runtime configuration for the stablemint daemon.
type Config struct {
	Service ServiceConfig `toml:"service"`
	Engine  EngineConfig  `toml:"engine"`
	Oracle  OracleConfig  `toml:"oracle"`
	Assets  []AssetConfig `toml:"assets"`
	// Balances seed collateral-token holdings at startup so the in-memory
	// token ledgers have something to transfer from.
	Balances []BalanceConfig `toml:"balances"`
}

// ServiceConfig describes the process-level settings.
type ServiceConfig struct {
	Name          string `toml:"Name"`
	Environment   string `toml:"Environment"`
	ListenAddress string `toml:"ListenAddress"`
}

// EngineConfig carries the protocol risk parameters in basis points.
type EngineConfig struct {
	ModuleAddress           string `toml:"ModuleAddress"`
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps     uint64 `toml:"LiquidationBonusBps"`
	MaxPriceAgeSeconds      int64  `toml:"MaxPriceAgeSeconds"`
	Paused                  bool   `toml:"Paused"`
}

// OracleConfig selects and configures the price source.
type OracleConfig struct {
	// Mode is either "manual" (seeded in-memory quotes) or "feed" (HTTP
	// price endpoint).
	Mode         string        `toml:"Mode"`
	Endpoint     string        `toml:"Endpoint"`
	APIKey       string        `toml:"APIKey"`
	FeedDecimals uint8         `toml:"FeedDecimals"`
	Prices       []ManualPrice `toml:"prices"`
}

// ManualPrice seeds one manual-oracle quote at startup.
type ManualPrice struct {
	Symbol string `toml:"Symbol"`
	Price  string `toml:"Price"`
}

// AssetConfig declares one supported collateral asset.
type AssetConfig struct {
	Symbol   string `toml:"Symbol"`
	Decimals uint8  `toml:"Decimals"`
}

// BalanceConfig funds one account with collateral tokens at startup.
type BalanceConfig struct {
	Address string `toml:"Address"`
	Asset   string `toml:"Asset"`
	Amount  string `toml:"Amount"`
}

// Load reads, normalises and validates a TOML configuration file.
func Load(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg = cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalise applies defaults and canonical casing to the configuration.
func (c Config) Normalise() Config {
	cfg := c
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = "stablemintd"
	}
	if strings.TrimSpace(cfg.Service.ListenAddress) == "" {
		cfg.Service.ListenAddress = ":8545"
	}
	if cfg.Engine.LiquidationThresholdBps == 0 {
		cfg.Engine.LiquidationThresholdBps = 5_000
	}
	if cfg.Engine.LiquidationBonusBps == 0 {
		cfg.Engine.LiquidationBonusBps = 1_000
	}
	if cfg.Engine.MaxPriceAgeSeconds <= 0 {
		cfg.Engine.MaxPriceAgeSeconds = 3 * 60 * 60
	}
	if strings.TrimSpace(cfg.Oracle.Mode) == "" {
		cfg.Oracle.Mode = "manual"
	}
	cfg.Oracle.Mode = strings.ToLower(strings.TrimSpace(cfg.Oracle.Mode))
	if cfg.Oracle.FeedDecimals == 0 {
		cfg.Oracle.FeedDecimals = 8
	}
	for i := range cfg.Assets {
		cfg.Assets[i].Symbol = strings.ToUpper(strings.TrimSpace(cfg.Assets[i].Symbol))
		if cfg.Assets[i].Decimals == 0 {
			cfg.Assets[i].Decimals = 18
		}
	}
	for i := range cfg.Oracle.Prices {
		cfg.Oracle.Prices[i].Symbol = strings.ToUpper(strings.TrimSpace(cfg.Oracle.Prices[i].Symbol))
	}
	for i := range cfg.Balances {
		cfg.Balances[i].Asset = strings.ToUpper(strings.TrimSpace(cfg.Balances[i].Asset))
	}
	return cfg
}

// Validate rejects configurations the daemon cannot start under.
func (c Config) Validate() error {
	if c.Engine.LiquidationThresholdBps > 10_000 {
		return fmt.Errorf("config: liquidation threshold %d bps exceeds 10000", c.Engine.LiquidationThresholdBps)
	}
	if c.Engine.LiquidationBonusBps >= 10_000 {
		return fmt.Errorf("config: liquidation bonus %d bps must be below 10000", c.Engine.LiquidationBonusBps)
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("config: at least one collateral asset required")
	}
	seen := make(map[string]struct{}, len(c.Assets))
	for _, asset := range c.Assets {
		if asset.Symbol == "" {
			return fmt.Errorf("config: asset symbol required")
		}
		if _, dup := seen[asset.Symbol]; dup {
			return fmt.Errorf("config: duplicate asset %s", asset.Symbol)
		}
		seen[asset.Symbol] = struct{}{}
		if asset.Decimals > 36 {
			return fmt.Errorf("config: asset %s decimals %d out of range", asset.Symbol, asset.Decimals)
		}
	}
	switch c.Oracle.Mode {
	case "manual":
	case "feed":
		if strings.TrimSpace(c.Oracle.Endpoint) == "" {
			return fmt.Errorf("config: feed oracle requires an endpoint")
		}
	default:
		return fmt.Errorf("config: unknown oracle mode %q", c.Oracle.Mode)
	}
	return nil
}

// MaxPriceAge converts the configured staleness window into a duration.
func (c EngineConfig) MaxPriceAge() time.Duration {
	return time.Duration(c.MaxPriceAgeSeconds) * time.Second
}
