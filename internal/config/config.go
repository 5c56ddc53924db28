package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"pulseboard/internal/models"
)

// Config holds all application configuration
type Config struct {
	Port        string
	SnapshotDB  string // path to the local SQLite snapshot database
	SourcesFile string // path to the polled data sources YAML file

	// Context synchronization
	HistoryLogCap int // max retained context history entries

	// Update pipeline
	QueueCapacity   int           // pending queue size before eviction
	HistoryCapacity int           // delivered-update audit size before eviction
	BatchSize       int           // max updates taken per processing pass
	ThrottleDelay   time.Duration // delay between reaching batch size and flushing

	// Subscriptions
	DefaultRefreshRate int           // milliseconds
	StaleAfter         time.Duration // inactive+stale subscriptions older than this get pruned

	// Layout
	GridColumns int

	// Maintenance
	OptimizeInterval time.Duration
	AutosaveInterval time.Duration
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3001"),
		SnapshotDB:  getEnv("SNAPSHOT_DB", "pulseboard.db"),
		SourcesFile: getEnv("SOURCES_FILE", "sources.yaml"),

		HistoryLogCap: getIntEnv("HISTORY_LOG_CAP", 200),

		QueueCapacity:   getIntEnv("UPDATE_QUEUE_CAPACITY", 100),
		HistoryCapacity: getIntEnv("UPDATE_HISTORY_CAPACITY", 500),
		BatchSize:       getIntEnv("UPDATE_BATCH_SIZE", 10),
		ThrottleDelay:   getDurationEnv("UPDATE_THROTTLE_DELAY", time.Second),

		DefaultRefreshRate: getIntEnv("DEFAULT_REFRESH_RATE_MS", 30000),
		StaleAfter:         getDurationEnv("SUBSCRIPTION_STALE_AFTER", 5*time.Minute),

		GridColumns: getIntEnv("GRID_COLUMNS", 4),

		OptimizeInterval: getDurationEnv("OPTIMIZE_INTERVAL", time.Minute),
		AutosaveInterval: getDurationEnv("AUTOSAVE_INTERVAL", 5*time.Minute),
	}
}

// LoadSources loads the polled data sources from a YAML file.
func LoadSources(filePath string) (*models.SourcesFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var sources models.SourcesFile
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("failed to parse sources YAML: %w", err)
	}

	return &sources, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
