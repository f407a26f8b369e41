// Package config loads environment configuration and the tunable import policy.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Store reconnects
	SurrealDBConnectTimeout   time.Duration
	SurrealDBReconnectInitial time.Duration
	SurrealDBReconnectMax     time.Duration
	SurrealDBReconnectRetries int

	// Providers
	TMDbAPIKey    string
	TMDbBaseURL   string
	OMDbAPIKey    string
	OMDbBaseURL   string
	ScrapeBaseURL string

	// Response cache
	CachePath string
	CacheTTL  time.Duration

	// Workers
	DiscoveryWorkers int
	DetailWorkers    int
	SecondaryWorkers int
	PollInterval     time.Duration
	JobTimeout       time.Duration

	// Server
	ServerPort string
	PolicyFile string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "reelimport"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "catalog"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		SurrealDBConnectTimeout:   getDuration("SURREALDB_CONNECT_TIMEOUT", 5*time.Second),
		SurrealDBReconnectInitial: getDuration("SURREALDB_RECONNECT_INITIAL", time.Second),
		SurrealDBReconnectMax:     getDuration("SURREALDB_RECONNECT_MAX", 30*time.Second),
		SurrealDBReconnectRetries: getInt("SURREALDB_RECONNECT_RETRIES", 10),

		TMDbAPIKey:    getEnv("TMDB_API_KEY", ""),
		TMDbBaseURL:   getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		OMDbAPIKey:    getEnv("OMDB_API_KEY", ""),
		OMDbBaseURL:   getEnv("OMDB_BASE_URL", "https://www.omdbapi.com"),
		ScrapeBaseURL: getEnv("REELIMPORT_SCRAPE_BASE_URL", "https://www.imdb.com"),

		CachePath: getEnv("REELIMPORT_CACHE_PATH", "/tmp/reelimport-cache.db"),
		CacheTTL:  getDuration("REELIMPORT_CACHE_TTL", 7*24*time.Hour),

		DiscoveryWorkers: getInt("REELIMPORT_DISCOVERY_WORKERS", 1),
		DetailWorkers:    getInt("REELIMPORT_DETAIL_WORKERS", 8),
		SecondaryWorkers: getInt("REELIMPORT_SECONDARY_WORKERS", 2),
		PollInterval:     getDuration("REELIMPORT_POLL_INTERVAL", time.Second),
		JobTimeout:       getDuration("REELIMPORT_JOB_TIMEOUT", 2*time.Minute),

		ServerPort: getEnv("REELIMPORT_SERVER_PORT", "8585"),
		PolicyFile: getEnv("REELIMPORT_POLICY_FILE", "reelimport.yaml"),

		LogFile:  getEnv("REELIMPORT_LOG_FILE", "/tmp/reelimport.log"),
		LogLevel: parseLogLevel(getEnv("REELIMPORT_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
