package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-observatory/internal/weather"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "LOG_LEVEL", "PORT", "DATA_DIR", "LIVE_BASE_URL", "POLL_INTERVAL", "HTTP_TIMEOUT",
		"STORE_BACKEND", "SQLITE_PATH", "BADGER_PATH", "STORE_MAX_HISTORY", "STORE_MAX_AGE", "CACHE_SIZE", "CACHE_TTL", "STATIONS", "STATIONS_FILE", "MQTT_BROKER", "MQTT_TOPIC_PREFIX",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, time.Duration(0), cfg.StoreMaxAge)
	assert.Len(t, cfg.Stations, len(weather.DefaultStations))
	assert.Empty(t, cfg.MQTTBroker)
	assert.Equal(t, "observatory", cfg.MQTTTopicPrefix)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("STORE_MAX_HISTORY", "10")
	t.Setenv("CACHE_SIZE", "not-a-number")
	t.Setenv("STATIONS", "udi, ahm")
	t.Setenv("LIVE_BASE_URL", " https://example.org/live ")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 10, cfg.StoreMaxHistory)
	assert.Equal(t, 256, cfg.CacheSize)
	assert.Equal(t, "https://example.org/live", cfg.LiveBaseURL)
	require.Len(t, cfg.Stations, 2)
	assert.Equal(t, "udi", cfg.Stations[0].ID)
}

func TestFromEnv_Invalid(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"APP_ENV":           "staging",
		"LOG_LEVEL":         "loud",
		"STORE_BACKEND":     "postgres",
		"POLL_INTERVAL":     "often",
		"CACHE_TTL":         "10",
		"STATIONS":          "ahm,xyz",
		"STORE_MAX_HISTORY": "abc",
		"CACHE_SIZE":        "x",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}

	t.Setenv("STATIONS", "xyz")
	_, err := FromEnv()
	assert.True(t, errors.Is(err, weather.ErrUnknownStation))
}
