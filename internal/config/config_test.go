package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("LIFECYCLE_MAX_RETRIES", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Lifecycle.MaxRetries)
	assert.Equal(t, "HD", cfg.Lifecycle.CodePrefix)
	assert.Equal(t, 7*365*24*time.Hour, cfg.Audit.Retention())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
	assert.Equal(t, SLAHours{}, cfg.SLA.High)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLA_HIGH_RESOLUTION_HOURS", "12")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("LIFECYCLE_MAX_RETRIES", "5")
	t.Setenv("APP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.SLA.ByPriority()["high"].Resolution)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval)
	assert.Equal(t, 5, cfg.Lifecycle.MaxRetries)
	assert.Equal(t, "0.0.0.0:9090", cfg.App.Addr())
}

func TestLoadRejectsZeroRetries(t *testing.T) {
	t.Setenv("LIFECYCLE_MAX_RETRIES", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestInvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	_, err := Load()
	assert.Error(t, err)
}
