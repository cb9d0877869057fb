package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	cfg := Load(v)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, 64, cfg.RealtimeQueueSize)
	assert.False(t, cfg.RealtimeRequireAuth)
	assert.Equal(t, RelayNone, cfg.RelayDriver)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RELAY_DRIVER", " Redis ")
	t.Setenv("REALTIME_REQUIRE_AUTH", "true")
	t.Setenv("SESSION_TTL_HOURS", "0")

	v := viper.New()
	SetDefaults(v)
	cfg := Load(v)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, RelayRedis, cfg.RelayDriver)
	assert.True(t, cfg.RealtimeRequireAuth)
	assert.Zero(t, cfg.SessionTTL)
}
