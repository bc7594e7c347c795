// Package config loads task board settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	HTTPPort        int
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string

	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	CacheEnabled   bool
	CacheKey       string
	CacheTTL       time.Duration
	CacheOpTimeout time.Duration

	ObserverBuffer int
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		HTTPPort:        getEnvInt("PORT", 3000),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "json")),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		DatabaseURL: getEnv("DATABASE_URL", postgresURLFromParts()),
		SQLitePath:  getEnv("SQLITE_PATH", "./tasks.db"),

		RedisAddr:      getEnv("REDIS_ADDR", getEnv("REDIS_HOST", "localhost")+":"+getEnv("REDIS_PORT", "6379")),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		CacheEnabled:   getEnvBool("CACHE_ENABLED", true),
		CacheKey:       getEnv("CACHE_KEY", "tasks:all"),
		CacheTTL:       getEnvDuration("CACHE_TTL", 60*time.Second),
		CacheOpTimeout: getEnvDuration("CACHE_OP_TIMEOUT", 500*time.Millisecond),

		ObserverBuffer: getEnvInt("OBSERVER_BUFFER", 64),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the application cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.HTTPPort))
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.StoreDriver))
	}
	if c.CacheEnabled {
		if c.CacheKey == "" {
			errs = append(errs, errors.New("CACHE_KEY must not be empty"))
		}
		if c.CacheTTL <= 0 {
			errs = append(errs, fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL))
		}
		if c.CacheOpTimeout <= 0 {
			errs = append(errs, fmt.Errorf("CACHE_OP_TIMEOUT must be positive, got %s", c.CacheOpTimeout))
		}
	}
	if c.ObserverBuffer <= 0 {
		errs = append(errs, fmt.Errorf("OBSERVER_BUFFER must be positive, got %d", c.ObserverBuffer))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout))
	}

	return errors.Join(errs...)
}

// Address returns the HTTP listen address.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// postgresURLFromParts builds a connection URL from the PG_* variables.
func postgresURLFromParts() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("PG_USER", "postgres"), getEnv("PG_PASSWORD", "postgres")),
		Host:     getEnv("PG_HOST", "localhost") + ":" + getEnv("PG_PORT", "5432"),
		Path:     "/" + getEnv("PG_DATABASE", "task_board"),
		RawQuery: "sslmode=" + getEnv("PG_SSLMODE", "disable"),
	}
	return u.String()
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns environment variable as int or default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration returns environment variable as duration or default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("Warning: invalid duration value for %s: %s, using default: %s", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvBool returns environment variable as bool or default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Printf("Warning: invalid bool value for %s: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}
