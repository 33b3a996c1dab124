package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"aria/internal/models"
)

// Config holds all application configuration
type Config struct {
	Port        string
	MongoURI    string
	RedisURL    string
	Environment string

	ProvidersPath string // providers.json
	PolicyPath    string // policy.yaml

	// Calendar provider endpoint (HTTP, Composio-style action API)
	CalendarBaseURL  string
	CalendarAPIKey   string
	CalendarEntityID string

	EncryptionMasterKey string // 32-byte hex, required in production
	JWTSecret           string

	HistoryLimit int
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3001"),
		MongoURI:    getEnv("MONGODB_URI", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		Environment: getEnv("ENVIRONMENT", "development"),

		ProvidersPath: getEnv("PROVIDERS_PATH", "providers.json"),
		PolicyPath:    getEnv("POLICY_PATH", "policy.yaml"),

		CalendarBaseURL:  getEnv("CALENDAR_API_URL", ""),
		CalendarAPIKey:   getEnv("CALENDAR_API_KEY", ""),
		CalendarEntityID: getEnv("CALENDAR_ENTITY_ID", "default"),

		EncryptionMasterKey: getEnv("ENCRYPTION_MASTER_KEY", ""),
		JWTSecret:           getEnv("JWT_SECRET", ""),

		HistoryLimit: getIntEnv("HISTORY_LIMIT", 20),
	}
}

// LoadProviders loads providers configuration from JSON file
func LoadProviders(filePath string) (*models.ProvidersConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var config models.ProvidersConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse providers JSON: %w", err)
	}

	return &config, nil
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
