// Package config holds application configuration: process-level settings
// read from the environment at startup, and the runtime-adjustable engine
// parameters exposed through the API.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level configuration
type Config struct {
	Port     int
	DevMode  bool
	LogLevel string
	DataDir  string

	// External collaborators
	GammaBaseURL   string
	BinanceBaseURL string
	SentimentURL   string
	MarketWSURL    string

	// Real-time price feed
	UseWebsocket bool
	WSStaleAfter time.Duration

	// Job cadences
	ScanInterval         time.Duration
	ExitInterval         time.Duration
	HistoryRetentionDays int

	// Pool layout: "combined" runs one capital pool over all strategies,
	// "isolated" runs one independent pool per strategy.
	PoolMode       string
	StrategyFilter string
	InitialBalance float64

	// Ledger backups to S3-compatible storage
	BackupEnabled       bool
	S3Endpoint          string
	S3Region            string
	S3Bucket            string
	S3AccessKeyID       string
	S3SecretAccessKey   string
	BackupRetentionDays int

	// Engine parameter defaults; the runtime-adjustable subset lives in
	// Settings after startup.
	Engine Params
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnvAsInt("PORT", 8090),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DataDir:  getEnv("DATA_DIR", "./data"),

		GammaBaseURL:   getEnv("GAMMA_BASE_URL", "https://gamma-api.polymarket.com"),
		BinanceBaseURL: getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
		SentimentURL:   getEnv("SENTIMENT_URL", ""),
		MarketWSURL:    getEnv("MARKET_WS_URL", ""),

		UseWebsocket: getEnvAsBool("USE_WEBSOCKET", false),
		WSStaleAfter: time.Duration(getEnvAsInt("WS_STALE_SECONDS", 30)) * time.Second,

		ScanInterval:         time.Duration(getEnvAsInt("SCAN_INTERVAL_SECONDS", 120)) * time.Second,
		ExitInterval:         time.Duration(getEnvAsInt("EXIT_INTERVAL_SECONDS", 30)) * time.Second,
		HistoryRetentionDays: getEnvAsInt("HISTORY_RETENTION_DAYS", 90),

		PoolMode:       getEnv("POOL_MODE", "combined"),
		StrategyFilter: getEnv("STRATEGY_FILTER", ""),
		InitialBalance: getEnvAsFloat("INITIAL_BALANCE", 1000.00),

		BackupEnabled:       getEnvAsBool("BACKUP_ENABLED", false),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		S3Region:            getEnv("S3_REGION", "auto"),
		S3Bucket:            getEnv("S3_BUCKET", ""),
		S3AccessKeyID:       getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:   getEnv("S3_SECRET_ACCESS_KEY", ""),
		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),

		Engine: DefaultParams(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.PoolMode != "combined" && c.PoolMode != "isolated" {
		return fmt.Errorf("POOL_MODE must be combined or isolated, got %q", c.PoolMode)
	}
	if c.InitialBalance <= 0 {
		return fmt.Errorf("INITIAL_BALANCE must be positive")
	}
	if c.ScanInterval <= 0 || c.ExitInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL_SECONDS and EXIT_INTERVAL_SECONDS must be positive")
	}
	if c.BackupEnabled {
		if c.S3Bucket == "" || c.S3AccessKeyID == "" || c.S3SecretAccessKey == "" {
			return fmt.Errorf("BACKUP_ENABLED requires S3_BUCKET, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY")
		}
	}
	return nil
}

// Helper functions
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
