package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"API_PORT", "DB_DRIVER", "REDIS_URL", "SWEEP_SCHEDULE", "DISPATCH_RATE_PER_SECOND", "RETRY_MAX_ATTEMPTS", "CORS_ALLOWED_ORIGINS", "SWEEP_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, "@every 1m", cfg.SweepSchedule)
	assert.True(t, cfg.SweepEnabled)
	assert.Equal(t, 10.0, cfg.DispatchRatePerSecond)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.LockTTL)
	assert.Nil(t, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("API_ENVIRONMENT", "production")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("SWEEP_ENABLED", "false")
	t.Setenv("DISPATCH_RATE_PER_SECOND", "2.5")
	t.Setenv("RETRY_INITIAL_BACKOFF", "250ms")
	t.Setenv("LOCK_WAIT", "2s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://ops.example.ae, ,https://n8n.example.ae")

	cfg := Load()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.False(t, cfg.SweepEnabled)
	assert.Equal(t, 2.5, cfg.DispatchRatePerSecond)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryInitialBackoff)
	assert.Equal(t, 2*time.Second, cfg.LockWait)
	assert.Equal(t, []string{"https://ops.example.ae", "https://n8n.example.ae"}, cfg.CORSAllowedOrigins)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "lots")
	t.Setenv("DISPATCH_TIMEOUT", "30")
	t.Setenv("DISPATCH_RATE_PER_SECOND", "fast")
	t.Setenv("SWEEP_ENABLED", "sometimes")

	cfg := Load()

	assert.Equal(t, 10, cfg.RateLimitBurst)
	assert.Equal(t, 30*time.Second, cfg.DispatchTimeout)
	assert.Equal(t, 10.0, cfg.DispatchRatePerSecond)
	assert.True(t, cfg.SweepEnabled)
}
