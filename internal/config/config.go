// Package config provides configuration management functionality.
//
// Configuration is loaded from environment variables, with an optional
// .env file for local development. There is no settings database in this
// service: all configuration is static for the life of the process.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir  string // Base directory for the durable SQLite store
	Port     int    // HTTP server port
	LogLevel string // debug, info, warn, error
	DevMode  bool

	RedisAddr     string // Hot cache tier
	RedisPassword string
	RedisDB       int

	PriorityProfilePath string // Path to priority_profiles.json

	MaxConcurrentTasks int // Scheduler concurrency cap
	MaxQueueSize       int // Concurrency manager queue cap
	MaxConcurrentPool  int // Concurrency manager cap, independent of the scheduler

	DefaultMaxDebateRounds int
	DefaultMaxRiskRounds   int

	// Loaded from MONITOR_INTERVAL and HEALTH_CHECK_INTERVAL, but not read
	// by the monitor or the balancer, which use fixed 30s intervals.
	MonitorInterval  time.Duration
	HealthCheckEvery time.Duration

	LLM        LLMConfig
	Federation FederationConfig

	S3Bucket string // Durable-tier export target (optional, empty disables export)
	S3Region string
}

// LLMConfig holds provider credentials and defaults for the routing layer.
type LLMConfig struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	DefaultProvider string
}

// FederationConfig holds per-source credentials for the data federation.
// An absent key silently disables that adapter rather than failing startup:
// the federation falls through to the next source in the priority list.
type FederationConfig struct {
	TushareToken    string
	AlphaVantageKey string
	TwelveDataKey   string
	IEXCloudToken   string
	FinnhubKey      string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// godotenv.Load() returns an error if .env doesn't exist, which is fine.
	_ = godotenv.Load()

	dataDir := getEnv("ORCHESTRATOR_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		PriorityProfilePath: getEnv("PRIORITY_PROFILE_PATH", filepath.Join(absDataDir, "priority_profiles.json")),

		MaxConcurrentTasks: getEnvAsInt("MAX_CONCURRENT_TASKS", 5),
		MaxQueueSize:       getEnvAsInt("MAX_QUEUE_SIZE", 200),
		MaxConcurrentPool:  getEnvAsInt("MAX_CONCURRENT_POOL", 10),

		DefaultMaxDebateRounds: getEnvAsInt("MAX_DEBATE_ROUNDS", 2),
		DefaultMaxRiskRounds:   getEnvAsInt("MAX_RISK_ROUNDS", 1),

		MonitorInterval:  getEnvAsDuration("MONITOR_INTERVAL", 30*time.Second),
		HealthCheckEvery: getEnvAsDuration("HEALTH_CHECK_INTERVAL", 30*time.Second),

		LLM: LLMConfig{
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			DefaultProvider: getEnv("DEFAULT_LLM_PROVIDER", "openai"),
		},

		Federation: FederationConfig{
			TushareToken:    getEnv("TUSHARE_TOKEN", ""),
			AlphaVantageKey: getEnv("ALPHA_VANTAGE_KEY", ""),
			TwelveDataKey:   getEnv("TWELVE_DATA_KEY", ""),
			IEXCloudToken:   getEnv("IEX_CLOUD_TOKEN", ""),
			FinnhubKey:      getEnv("FINNHUB_KEY", ""),
		},

		S3Bucket: getEnv("BACKUP_S3_BUCKET", ""),
		S3Region: getEnv("BACKUP_S3_REGION", "us-east-1"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required configuration invariants.
func (c *Config) Validate() error {
	if c.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_TASKS must be positive, got %d", c.MaxConcurrentTasks)
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("MAX_QUEUE_SIZE must be positive, got %d", c.MaxQueueSize)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
