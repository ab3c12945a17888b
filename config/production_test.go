package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("DB_PASSWORD", "secret")
}

func TestLoadProductionConfigDefaults(t *testing.T) {
	validEnv(t)

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 3, cfg.Scheduler.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.Scheduler.BaseBackoff)
	assert.Equal(t, 5, cfg.Scheduler.DeviceConcurrency)
	assert.Equal(t, 300*time.Millisecond, cfg.Scheduler.RateMinDelay)
	assert.Equal(t, time.Second, cfg.Scheduler.RateMaxDelay)
	assert.Equal(t, "wage-scheduler-queue", cfg.Queue.Name)
	assert.Equal(t, 10, cfg.Queue.Concurrency)
	assert.False(t, cfg.Queue.Enabled)
	assert.Equal(t, 1500*time.Millisecond, cfg.Session.ReconnectDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.CredSaveDebounce)
}

func TestLoadProductionConfigOverrides(t *testing.T) {
	validEnv(t)
	t.Setenv("SCHEDULER_POLL_INTERVAL", "5s")
	t.Setenv("SCHEDULER_MAX_RETRIES", "7")
	t.Setenv("QUEUE_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 7, cfg.Scheduler.MaxRetries)
	assert.True(t, cfg.Queue.Enabled)
	assert.Equal(t, "redis:6379", cfg.Queue.RedisAddr)
}

func TestValidateRejectsMissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := LoadProductionConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidateRejectsShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")

	_, err := LoadProductionConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 characters")
}

func TestValidateRejectsInvertedRateWindow(t *testing.T) {
	validEnv(t)
	t.Setenv("SCHEDULER_RATE_MIN_DELAY", "2s")
	t.Setenv("SCHEDULER_RATE_MAX_DELAY", "1s")

	_, err := LoadProductionConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate window")
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "wage", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=wage sslmode=disable", c.DSN())
}
