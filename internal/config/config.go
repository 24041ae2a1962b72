package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string
	JWTSecret    string
	DatabaseURL  string
	IndexPath    string
	IndexColl    string
	StaticDir    string
	HTTPPort     string
	LogLevel     string
	LogFormat    string

	// MaxConcurrentGenerations bounds in-flight model calls; a single
	// model replica cannot serve two generations in parallel.
	MaxConcurrentGenerations int
}

// Load reads configuration from the environment, preferring a .env file
// when one exists. It returns an error instead of exiting so callers can
// decide how fatal a missing secret is.
func Load() (*Config, error) {
	// No .env file is fine, plain environment variables still apply.
	_ = godotenv.Load()

	cfg := &Config{
		GeminiAPIKey:             getEnv("GEMINI_API_KEY", ""),
		JWTSecret:                getEnv("JWT_SECRET", ""),
		DatabaseURL:              getEnv("DATABASE_URL", "chatbot.db"),
		IndexPath:                getEnv("INDEX_PATH", "index"),
		IndexColl:                getEnv("INDEX_COLLECTION", "transit_docs"),
		StaticDir:                getEnv("STATIC_DIR", "static"),
		HTTPPort:                 getEnv("HTTP_PORT", "8000"),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		LogFormat:                getEnv("LOG_FORMAT", "json"),
		MaxConcurrentGenerations: getEnvAsInt("MAX_CONCURRENT_GENERATIONS", 1),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if cfg.MaxConcurrentGenerations < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_GENERATIONS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
