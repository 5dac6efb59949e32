package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the application configuration.
type Config struct {
	ServerPort      int
	DatabasePath    string
	UploadPath      string // Base path for uploaded avatar files
	JWTSecret       string
	CleanupSchedule string // Cron expression for the upload sweeper
	Environment     string // "development" or "production"
}

// Load loads configuration from environment variables or sets defaults.
func Load() (*Config, error) {
	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}

	secret := getEnv("JWT_SECRET", "")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET must be set")
	}

	return &Config{
		ServerPort:      port,
		DatabasePath:    getEnv("DATABASE_PATH", "./scribe.db"),
		UploadPath:      getEnv("UPLOAD_PATH", "./uploads"),
		JWTSecret:       secret,
		CleanupSchedule: getEnv("CLEANUP_SCHEDULE", "@hourly"),
		Environment:     getEnv("APP_ENV", "development"),
	}, nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
