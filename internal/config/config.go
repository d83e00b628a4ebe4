package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ayushdsd/spotlight-sub000/internal/logger"
)

var log = logger.New("config")

// Config holds everything the server reads from the environment
type Config struct {
	Port           string
	Env            string
	LogFile        string
	Database       DatabaseConfig
	JWT            JWTConfig
	AllowedOrigins []string
	RateLimit      RateLimitConfig
}

type DatabaseConfig struct {
	Type    string
	URI     string
	Name    string
	Timeout time.Duration
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

type RateLimitConfig struct {
	MessagesPerMinute int
	Burst             int
	AuthPerMinute     int
}

// Load reads .env (if present) and the process environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn(".env file not found, using environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// optional; logs are teed to this file when set
		LogFile: os.Getenv("LOG_FILE"),

		Database: DatabaseConfig{
			Type:    getEnv("DB_TYPE", "mongo"),
			URI:     os.Getenv("MONGODB_URI"),
			Name:    getEnv("MONGODB_DATABASE", "spotlight"),
			Timeout: 10 * time.Second,
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			TTL:    24 * time.Hour,
		},
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		RateLimit: RateLimitConfig{
			MessagesPerMinute: 60,
			Burst:             10,
			AuthPerMinute:     10,
		},
	}

	var err error
	if v := os.Getenv("JWT_TTL"); v != "" {
		if cfg.JWT.TTL, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid JWT_TTL %q: %w", v, err)
		}
	}
	if cfg.RateLimit.MessagesPerMinute, err = getInt("RATE_LIMIT_RPM", cfg.RateLimit.MessagesPerMinute); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Burst, err = getInt("RATE_LIMIT_BURST", cfg.RateLimit.Burst); err != nil {
		return nil, err
	}
	if cfg.RateLimit.AuthPerMinute, err = getInt("AUTH_RATE_LIMIT_RPM", cfg.RateLimit.AuthPerMinute); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	switch c.Database.Type {
	case "mongo":
		if c.Database.URI == "" {
			return errors.New("MONGODB_URI is required when DB_TYPE=mongo")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported DB_TYPE %q", c.Database.Type)
	}
	return nil
}

// IsProduction reports whether gin should run in release mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, v)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
