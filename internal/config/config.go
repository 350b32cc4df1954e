// Package config loads textmask defaults from the environment.
//
// Values come from the process environment, optionally seeded from a .env file
// in the working directory. Command-line flags override everything here.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds environment-derived defaults
type Config struct {
	// OCR engine configuration
	Engine       string
	Lang         string
	PythonBin    string
	WorkerScript string
	DetScoreMode string
	DetDilation  bool

	// Mask configuration
	DilateRadius int

	// Logging
	LogLevel string

	// PostgreSQL configuration (empty disables the run ledger)
	DatabaseURL string
}

// Load reads .env (if present) and then the environment.
func Load() (*Config, error) {
	// A missing .env is normal; system environment variables still apply.
	_ = godotenv.Load()

	cfg := &Config{
		Engine:       getEnvOrDefault("TEXTMASK_ENGINE", "paddle"),
		Lang:         getEnvOrDefault("TEXTMASK_LANG", "ch"),
		PythonBin:    getEnvOrDefault("TEXTMASK_PYTHON", "python3"),
		WorkerScript: getEnvOrDefault("TEXTMASK_WORKER_SCRIPT", "python/ocr_worker.py"),
		DetScoreMode: getEnvOrDefault("TEXTMASK_DET_SCORE_MODE", "slow"),
		DetDilation:  getEnvAsBoolOrDefault("TEXTMASK_DET_DILATION", true),
		DilateRadius: getEnvAsIntOrDefault("TEXTMASK_DILATE", 0),
		LogLevel:     getEnvOrDefault("TEXTMASK_LOG_LEVEL", "info"),
		DatabaseURL:  databaseURLFromEnv(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Engine == "" {
		return fmt.Errorf("TEXTMASK_ENGINE must not be empty")
	}
	if err := ValidateDetScoreMode(c.DetScoreMode); err != nil {
		return fmt.Errorf("TEXTMASK_DET_SCORE_MODE: %w", err)
	}
	if c.DilateRadius < 0 {
		return fmt.Errorf("TEXTMASK_DILATE must be >= 0, got %d", c.DilateRadius)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("TEXTMASK_LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	return nil
}

// ValidateDetScoreMode accepts the detector box scoring modes.
func ValidateDetScoreMode(mode string) error {
	switch mode {
	case "slow", "fast":
		return nil
	}
	return fmt.Errorf("detector score mode must be slow or fast, got %q", mode)
}

// databaseURLFromEnv builds a connection string from POSTGRES_* variables.
// It returns "" when POSTGRES_HOST is unset, which keeps the ledger off.
func databaseURLFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := getEnvOrDefault("POSTGRES_DB", "textmask")
	port := getEnvOrDefault("POSTGRES_PORT", "5432")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
