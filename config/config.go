// Package config loads process configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the daemon reads. Pass it explicitly; nothing
// in this package is global.
type Config struct {
	ListenAddr string

	DBDriver string
	DBDSN    string

	RedisAddr string

	LogLevel string

	AuthCacheTTL   time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Load reads SPOTEX_* variables, falling back to defaults. A .env file in
// the working directory is merged in first when present.
func Load() (*Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	c := &Config{
		ListenAddr: getEnv("SPOTEX_LISTEN_ADDR", ":8000"),
		DBDriver:   getEnv("SPOTEX_DB_DRIVER", "sqlite3"),
		DBDSN:      getEnv("SPOTEX_DB_DSN", "file:spotex.db?cache=shared&_fk=1"),
		RedisAddr:  getEnv("SPOTEX_REDIS_ADDR", ""),
		LogLevel:   getEnv("SPOTEX_LOG_LEVEL", "info"),
	}

	var err error
	if c.AuthCacheTTL, err = getDuration("SPOTEX_AUTH_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}
	if c.RateLimitRPS, err = getInt("SPOTEX_RATE_LIMIT_RPS", 50); err != nil {
		return nil, err
	}
	if c.RateLimitBurst, err = getInt("SPOTEX_RATE_LIMIT_BURST", 100); err != nil {
		return nil, err
	}
	if c.ReadTimeout, err = getDuration("SPOTEX_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if c.WriteTimeout, err = getDuration("SPOTEX_WRITE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if c.ShutdownTimeout, err = getDuration("SPOTEX_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	return c, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
