package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.ListenAddr)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, time.Minute, cfg.AuthCacheTTL)
	assert.Equal(t, 50, cfg.RateLimitRPS)
	assert.Equal(t, 100, cfg.RateLimitBurst)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SPOTEX_LISTEN_ADDR", ":9999")
	t.Setenv("SPOTEX_DB_DRIVER", "postgres")
	t.Setenv("SPOTEX_RATE_LIMIT_RPS", "5")
	t.Setenv("SPOTEX_AUTH_CACHE_TTL", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 5, cfg.RateLimitRPS)
	assert.Equal(t, 30*time.Second, cfg.AuthCacheTTL)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("SPOTEX_RATE_LIMIT_RPS", "many")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("SPOTEX_RATE_LIMIT_RPS", "50")
	t.Setenv("SPOTEX_READ_TIMEOUT", "soon")
	_, err = Load()
	assert.Error(t, err)
}
