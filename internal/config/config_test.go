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

	assert.Equal(t, 8080, cfg.AppPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.NotEmpty(t, cfg.Database.URL)
	assert.EqualValues(t, 10, cfg.Database.MaxConns)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "versefriends", cfg.Redis.ChannelPrefix)
	assert.Equal(t, 15*time.Minute, cfg.JWT.TTL)
	assert.Equal(t, 30, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("VERSEFRIENDS_PORT", "9090")
	t.Setenv("VERSEFRIENDS_DATABASE_DRIVER", "MEMORY")
	t.Setenv("VERSEFRIENDS_DATABASE_MEMORY_USERS", "3")
	t.Setenv("VERSEFRIENDS_REDIS_ADDR", "localhost:6379")
	t.Setenv("VERSEFRIENDS_JWT_SECRET", "s3cret")
	t.Setenv("VERSEFRIENDS_JWT_TTL", "1h")
	t.Setenv("VERSEFRIENDS_RATELIMIT_BURST", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.AppPort)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Database.MemoryUsers)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, time.Hour, cfg.JWT.TTL)
	assert.Equal(t, 2, cfg.RateLimit.Burst)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown driver": {"VERSEFRIENDS_DATABASE_DRIVER": "sqlite"},
		"bad port":       {"VERSEFRIENDS_PORT": "70000"},
		"empty url":      {"VERSEFRIENDS_DATABASE_URL": " "},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for key, value := range env {
				t.Setenv(key, value)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
