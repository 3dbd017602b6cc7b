package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stockflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "fifo-expiry", cfg.Allocation.Strategy)
	assert.Equal(t, 30, cfg.Allocation.CriticalDays)
	assert.True(t, cfg.Allocation.SkipExpired)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 15*time.Minute, cfg.Watch.Interval)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
env: production
log:
  level: warn
http:
  port: 9090
  read_timeout: 5s
allocation:
  strategy: lowest-cost
  critical_days: 14
  skip_expired: false
  eligibility: 'batch.supplier != "Blocked"'
redis:
  addr: localhost:6379
  response_ttl: 1h
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, "lowest-cost", cfg.Allocation.Strategy)
	assert.Equal(t, 14, cfg.Allocation.CriticalDays)
	assert.False(t, cfg.Allocation.SkipExpired)
	assert.Equal(t, `batch.supplier != "Blocked"`, cfg.Allocation.Eligibility)
	assert.Equal(t, time.Hour, cfg.Redis.ResponseTTL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "http:\n  port: 9090\n")
	t.Setenv("APP_PORT", "7070")
	t.Setenv("ALLOCATION_SKIP_EXPIRED", "false")
	t.Setenv("EXPIRY_CRITICAL_DAYS", "7")
	t.Setenv("DATABASE_URL", "postgres://localhost/stock")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.False(t, cfg.Allocation.SkipExpired)
	assert.Equal(t, 7, cfg.Allocation.CriticalDays)
	assert.Equal(t, "postgres://localhost/stock", cfg.Database.URL)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "http: [port"))
		assert.Error(t, err)
	})

	t.Run("bad env int", func(t *testing.T) {
		t.Setenv("APP_PORT", "eighty")
		_, err := Load("")
		assert.ErrorContains(t, err, "APP_PORT")
	})

	t.Run("unknown strategy", func(t *testing.T) {
		t.Setenv("ALLOCATION_STRATEGY", "random")
		_, err := Load("")
		assert.ErrorContains(t, err, "allocation.strategy")
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.HTTP.Port = 0
	cfg.Allocation.CriticalDays = 0
	cfg.Log.Level = "loud"
	cfg.Watch.Interval = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "http.port")
	assert.ErrorContains(t, err, "critical_days")
	assert.ErrorContains(t, err, "log.level")
	assert.ErrorContains(t, err, "watch.interval")
}
