package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "6001", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "local", cfg.Replication.Driver)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	assert.False(t, cfg.Webhooks.Enabled)
	assert.Equal(t, "pulsewire.webhooks", cfg.Webhooks.Topic)
	assert.False(t, cfg.Statistics.Enabled)
	assert.Empty(t, cfg.Database.URI)

	require.Len(t, cfg.Apps, 1)
	app := cfg.Apps[0]
	assert.Equal(t, "1", app.ID)
	assert.Equal(t, "app-key", app.Key)
	assert.Equal(t, "app-secret", app.Secret)
	assert.True(t, app.ClientMessagesEnabled)
	assert.Zero(t, app.Capacity)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("PULSEWIRE_PORT", "8080")
	t.Setenv("PULSEWIRE_REPLICATION_DRIVER", "redis")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("PULSEWIRE_APPS", `[{"id":"7","key":"k","secret":"s","capacity":100}]`)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Replication.Driver)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)

	require.Len(t, cfg.Apps, 1)
	assert.Equal(t, "7", cfg.Apps[0].ID)
	assert.Equal(t, 100, cfg.Apps[0].Capacity)
	assert.False(t, cfg.Apps[0].ClientMessagesEnabled)
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("PULSEWIRE_REPLICATION_DRIVER", "carrier-pigeon")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsMalformedApps(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("PULSEWIRE_APPS", `not json`)

	_, err := LoadConfig()
	assert.Error(t, err)
}
