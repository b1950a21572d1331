package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/weather-observatory/internal/weather"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

type AppConfig struct {
	AppEnv   string
	LogLevel slog.Level
	Port     string

	// Live files are read from LiveBaseURL when set, otherwise from DataDir.
	DataDir     string
	LiveBaseURL string

	// PollInterval controls how often live files are read.
	PollInterval time.Duration
	HTTPTimeout  time.Duration

	StoreBackend string
	SQLitePath   string
	BadgerPath   string

	// In-memory store retention.
	StoreMaxHistory int           // max number of readings per station (0 = unlimited)
	StoreMaxAge     time.Duration // max age of readings (0 = unlimited)

	CacheSize int
	CacheTTL  time.Duration

	// Stations to track. StationsFile, when set, replaces the built-in table.
	Stations     []weather.Station
	StationsFile string

	// MQTTBroker enables push ingestion of live lines when set.
	MQTTBroker      string
	MQTTTopicPrefix string
}

// Load reads an optional .env file and then the environment.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	return FromEnv()
}

// FromEnv reads configuration from environment with sensible defaults.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}

	cfg.AppEnv = getenvDefault("APP_ENV", "dev")
	switch cfg.AppEnv {
	case "dev", "prod":
	default:
		return nil, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", cfg.AppEnv)
	}

	level, err := parseLogLevel(getenvDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level
	cfg.Port = getenvDefault("PORT", "8080")

	cfg.DataDir = getenvDefault("DATA_DIR", "data")
	cfg.LiveBaseURL = strings.TrimSpace(os.Getenv("LIVE_BASE_URL"))

	if cfg.PollInterval, err = getenvDuration("POLL_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	cfg.StoreBackend = strings.ToLower(getenvDefault("STORE_BACKEND", BackendMemory))
	switch cfg.StoreBackend {
	case BackendMemory, BackendSQLite, BackendBadger:
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q (allowed: memory, sqlite, badger)", cfg.StoreBackend)
	}
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", "data/observatory.db")
	cfg.BadgerPath = getenvDefault("BADGER_PATH", "data/badger")

	// Store retention: a week of 5-minute samples by default.
	if cfg.StoreMaxHistory, err = getenvInt("STORE_MAX_HISTORY", 2016); err != nil {
		return nil, err
	}
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "0"); err != nil {
		return nil, err
	}

	if cfg.CacheSize, err = getenvInt("CACHE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", "10m"); err != nil {
		return nil, err
	}

	stations, err := loadStations(os.Getenv("STATIONS"))
	if err != nil {
		return nil, err
	}
	cfg.Stations = stations
	cfg.StationsFile = strings.TrimSpace(os.Getenv("STATIONS_FILE"))

	cfg.MQTTBroker = strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	cfg.MQTTTopicPrefix = strings.TrimSuffix(getenvDefault("MQTT_TOPIC_PREFIX", "observatory"), "/")

	return cfg, nil
}

// loadStations narrows the default station table to a comma separated id list.
func loadStations(ids string) ([]weather.Station, error) {
	if strings.TrimSpace(ids) == "" {
		return weather.DefaultStations, nil
	}
	known := make(map[string]weather.Station, len(weather.DefaultStations))
	for _, st := range weather.DefaultStations {
		known[st.ID] = st
	}

	var out []weather.Station
	for _, id := range strings.Split(ids, ",") {
		id = strings.TrimSpace(id)
		st, ok := known[id]
		if !ok {
			return nil, fmt.Errorf("invalid STATIONS: %w: %q", weather.ErrUnknownStation, id)
		}
		out = append(out, st)
	}
	return out, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	v := getenvDefault(key, def)
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
