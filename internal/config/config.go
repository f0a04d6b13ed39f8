// Package config provides configuration management for the conversion tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Scorer    ScorerConfig
	Worker    WorkerConfig
	Backend   BackendConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration for the event log
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ScorerConfig holds campaign scoring configuration.
// The reference points mark saturating good performance: contributions
// clamp at the weight's maximum once the metric passes the reference.
type ScorerConfig struct {
	RefreshInterval     time.Duration
	TrailingWindow      time.Duration
	AvgSaleReference    float64
	ConversionReference float64
	AvgSaleWeight       float64
	ConversionWeight    float64
	RefundWeight        float64
}

// WorkerConfig holds periodic task intervals
type WorkerConfig struct {
	TickInterval            time.Duration
	PingInterval            time.Duration
	CleanupInterval         time.Duration
	MigrationInterval       time.Duration
	LoadReportInterval      time.Duration
	ActivityClearInterval   time.Duration
	ActivityRetention       time.Duration
	SaleCompletionWindow    time.Duration
	MigrationLookback       time.Duration
	MigrationBatchSize      int
}

// BackendConfig holds the campaign backend client configuration
type BackendConfig struct {
	URL     string
	Hotkey  string
	Timeout time.Duration
}

// AuthConfig holds submitter authentication configuration
type AuthConfig struct {
	// Hex-encoded secp256k1 addresses allowed to call mutating endpoints.
	// Empty list disables signature checks (local development).
	AllowedHotkeys []string
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "conversion_tracker"),
				User:           getEnv("POSTGRES_USER", "tracker"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 100),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "conversion_tracker"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Scorer: ScorerConfig{
			RefreshInterval:     getEnvAsDuration("SCORER_REFRESH_INTERVAL", 30*time.Minute),
			TrailingWindow:      getEnvAsDuration("SCORER_TRAILING_WINDOW", 30*24*time.Hour),
			AvgSaleReference:    getEnvAsFloat("SCORER_AVG_SALE_REFERENCE", 500),
			ConversionReference: getEnvAsFloat("SCORER_CONVERSION_REFERENCE", 0.05),
			AvgSaleWeight:       getEnvAsFloat("SCORER_AVG_SALE_WEIGHT", 0.90),
			ConversionWeight:    getEnvAsFloat("SCORER_CONVERSION_WEIGHT", 0.05),
			RefundWeight:        getEnvAsFloat("SCORER_REFUND_WEIGHT", 0.05),
		},
		Worker: WorkerConfig{
			TickInterval:          getEnvAsDuration("WORKER_TICK_INTERVAL", 30*time.Second),
			PingInterval:          getEnvAsDuration("WORKER_PING_INTERVAL", 5*time.Minute),
			CleanupInterval:       getEnvAsDuration("WORKER_CLEANUP_INTERVAL", time.Hour),
			MigrationInterval:     getEnvAsDuration("WORKER_MIGRATION_INTERVAL", 6*time.Hour),
			LoadReportInterval:    getEnvAsDuration("WORKER_LOAD_REPORT_INTERVAL", 15*time.Minute),
			ActivityClearInterval: getEnvAsDuration("WORKER_ACTIVITY_CLEAR_INTERVAL", time.Hour),
			ActivityRetention:     getEnvAsDuration("WORKER_ACTIVITY_RETENTION", 24*time.Hour),
			SaleCompletionWindow:  getEnvAsDuration("WORKER_SALE_COMPLETION_WINDOW", 14*24*time.Hour),
			MigrationLookback:     getEnvAsDuration("WORKER_MIGRATION_LOOKBACK", 60*24*time.Hour),
			MigrationBatchSize:    getEnvAsInt("WORKER_MIGRATION_BATCH_SIZE", 500),
		},
		Backend: BackendConfig{
			URL:     getEnv("BACKEND_URL", "http://localhost:9100"),
			Hotkey:  getEnv("BACKEND_HOTKEY", ""),
			Timeout: getEnvAsDuration("BACKEND_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			AllowedHotkeys: getEnvAsList("AUTH_ALLOWED_HOTKEYS"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsInt("RATE_LIMIT_RPS", 50),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList gets a comma-separated environment variable as a string slice
func getEnvAsList(key string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return nil
	}

	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			values = append(values, p)
		}
	}
	return values
}
