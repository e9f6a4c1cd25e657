// Package config handles application configuration from environment variables
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	DatabaseURL string `env:"DATABASE_URL"`

	Cache   CacheConfig
	Monitor MonitorConfig
	Limits  LimitsConfig
}

// CacheConfig holds cache-engine tunables
type CacheConfig struct {
	// DefaultTTLSeconds applies when a store call carries no TTL (7 days).
	DefaultTTLSeconds int `env:"CACHE_DEFAULT_TTL_SECONDS" envDefault:"604800"`
	// CostPerEntryUSD feeds the informational cost-impact figure on invalidation.
	CostPerEntryUSD float64 `env:"CACHE_COST_PER_ENTRY_USD" envDefault:"0.002"`
}

// MonitorConfig holds content-monitor tunables
type MonitorConfig struct {
	SweepConcurrency    int `env:"MONITOR_SWEEP_CONCURRENCY" envDefault:"8"`
	FetchTimeoutSeconds int `env:"MONITOR_FETCH_TIMEOUT_SECONDS" envDefault:"20"`
}

// LimitsConfig holds per-tier rate and quota limits
type LimitsConfig struct {
	DemoPerMinute int   `env:"LIMIT_DEMO_PER_MINUTE" envDefault:"30"`
	LivePerMinute int   `env:"LIMIT_LIVE_PER_MINUTE" envDefault:"300"`
	DemoMonthly   int64 `env:"QUOTA_DEMO_MONTHLY" envDefault:"1000"`
	LiveMonthly   int64 `env:"QUOTA_LIVE_MONTHLY" envDefault:"1000000"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the configuration is internally consistent
func (c *Config) Validate() error {
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR must not be empty")
	}
	if c.Cache.DefaultTTLSeconds <= 0 {
		return fmt.Errorf("CACHE_DEFAULT_TTL_SECONDS must be positive, got %d", c.Cache.DefaultTTLSeconds)
	}
	if c.Limits.DemoPerMinute <= 0 || c.Limits.LivePerMinute <= 0 {
		return fmt.Errorf("per-minute limits must be positive")
	}
	if c.Monitor.SweepConcurrency <= 0 {
		return fmt.Errorf("MONITOR_SWEEP_CONCURRENCY must be positive, got %d", c.Monitor.SweepConcurrency)
	}
	return nil
}

// HasAuditDB returns true if a Postgres audit store is configured
func (c *Config) HasAuditDB() bool {
	return c.DatabaseURL != ""
}
