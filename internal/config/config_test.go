package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	require.Equal(t, 604800, cfg.Cache.DefaultTTLSeconds)
	require.Equal(t, 0.002, cfg.Cache.CostPerEntryUSD)
	require.Equal(t, 30, cfg.Limits.DemoPerMinute)
	require.Equal(t, int64(1000000), cfg.Limits.LiveMonthly)
	require.False(t, cfg.HasAuditDB())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("CACHE_DEFAULT_TTL_SECONDS", "3600")
	t.Setenv("LIMIT_DEMO_PER_MINUTE", "5")
	t.Setenv("DATABASE_URL", "postgres://localhost/agentcache")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "redis.internal:6380", cfg.RedisAddr)
	require.Equal(t, 3600, cfg.Cache.DefaultTTLSeconds)
	require.Equal(t, 5, cfg.Limits.DemoPerMinute)
	require.True(t, cfg.HasAuditDB())
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("CACHE_DEFAULT_TTL_SECONDS", "0")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "CACHE_DEFAULT_TTL_SECONDS")
}
