// Package config defines all configuration for the matcher daemon. Config
// is loaded from a YAML file with HATI_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"hati/internal/core"
	"hati/internal/exchange"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Matcher MatcherConfig `mapstructure:"matcher"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
}

// MatcherConfig tunes the per-pair book actors.
//
//   - SnapshotInterval: journaled events between snapshot triggers. Higher
//     means less I/O and slower recovery.
//   - OrderCleanupInterval: expiry scan period.
//   - RecoverOrderHistory: republish events during recovery so downstream
//     indexes rebuild automatically.
//   - MinPrice/MaxPrice/PriceTick: placement bounds; zero disables a bound.
type MatcherConfig struct {
	DataDir              string        `mapstructure:"data_dir"`
	SnapshotInterval     uint64        `mapstructure:"snapshot_interval"`
	OrderCleanupInterval time.Duration `mapstructure:"order_cleanup_interval"`
	RecoverOrderHistory  bool          `mapstructure:"recover_order_history"`
	MinPrice             uint64        `mapstructure:"min_price"`
	MaxPrice             uint64        `mapstructure:"max_price"`
	PriceTick            uint64        `mapstructure:"price_tick"`
	MailboxSize          int           `mapstructure:"mailbox_size"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides. A missing
// file is fine: defaults plus environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HATI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 9001)
	v.SetDefault("matcher.data_dir", "data")
	v.SetDefault("matcher.snapshot_interval", 1000)
	v.SetDefault("matcher.order_cleanup_interval", time.Minute)
	v.SetDefault("matcher.recover_order_history", false)
	v.SetDefault("matcher.mailbox_size", 256)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Matcher.DataDir == "" {
		return fmt.Errorf("matcher.data_dir is required")
	}
	if c.Matcher.SnapshotInterval == 0 {
		return fmt.Errorf("matcher.snapshot_interval must be > 0")
	}
	if c.Matcher.OrderCleanupInterval <= 0 {
		return fmt.Errorf("matcher.order_cleanup_interval must be > 0")
	}
	if c.Matcher.MailboxSize <= 0 {
		return fmt.Errorf("matcher.mailbox_size must be > 0")
	}
	if c.Matcher.MaxPrice > 0 && c.Matcher.MinPrice > c.Matcher.MaxPrice {
		return fmt.Errorf("matcher.min_price exceeds matcher.max_price")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range")
	}
	return nil
}

// ExchangeConfig maps the matcher section onto the dispatcher's config.
func (c *Config) ExchangeConfig() exchange.Config {
	return exchange.Config{
		DataDir: c.Matcher.DataDir,
		Book: core.Config{
			SnapshotInterval:    c.Matcher.SnapshotInterval,
			CleanupInterval:     c.Matcher.OrderCleanupInterval,
			RecoverOrderHistory: c.Matcher.RecoverOrderHistory,
			MinPrice:            c.Matcher.MinPrice,
			MaxPrice:            c.Matcher.MaxPrice,
			PriceTick:           c.Matcher.PriceTick,
			MailboxSize:         c.Matcher.MailboxSize,
		},
	}
}
