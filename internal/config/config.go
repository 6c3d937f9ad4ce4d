package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the dev server
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Logging  LoggingConfig

	// SeedFile is an optional YAML file of users created at startup
	SeedFile string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	Port        int
	CORSOrigins []string
}

// AuthConfig holds token issuing configuration
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	port, err := strconv.Atoi(getEnv("PORT", "5000"))
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT %q", os.Getenv("PORT"))
	}

	ttl, err := time.ParseDuration(getEnv("TOKEN_TTL", "1h"))
	if err != nil || ttl <= 0 {
		return nil, fmt.Errorf("invalid TOKEN_TTL %q: must be a positive duration like 30m or 24h", os.Getenv("TOKEN_TTL"))
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", "chatdesk.sqlite"),
		},
		Server: ServerConfig{
			Port:        port,
			CORSOrigins: []string{getEnv("CORS_ORIGIN", "http://localhost:5173")},
		},
		Auth: AuthConfig{
			JWTSecret: secret,
			TokenTTL:  ttl,
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		SeedFile: os.Getenv("SEED_FILE"),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
