package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadEnvDefaults(t *testing.T) {
	cfg := LoadEnv()
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 10*time.Second, cfg.Cache.FetchTimeout)
	assert.True(t, cfg.Backend.UseMethodOverrideForMultipart)
	assert.False(t, cfg.NeedsRedis())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT", "3")
	t.Setenv("FETCH_CACHE_TTL", "90s")
	t.Setenv("SESSION_DRIVER", "redis")
	t.Setenv("METHOD_OVERRIDE_MULTIPART", "false")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := LoadEnv()
	assert.Equal(t, 3*time.Second, cfg.Cache.FetchTimeout)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.False(t, cfg.Backend.UseMethodOverrideForMultipart)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.True(t, cfg.NeedsRedis())
}
