package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port         string
	DBPath       string
	LogLevel     string
	SecureCookie bool
}

// Load reads configuration from the environment, after loading a .env file
// if one is present in the working directory.
func Load() (*Config, error) {
	// Missing .env is fine; explicit env vars win either way.
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		DBPath:       getEnv("DB_PATH", "database.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		SecureCookie: getEnvBool("SECURE_COOKIE", false),
	}

	if port, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT %q: must be a number", cfg.Port)
	} else if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT %d: must be between 1 and 65535", port)
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("DB_PATH cannot be empty")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultVal
	}
	return b
}
