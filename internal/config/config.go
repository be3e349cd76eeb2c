package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Create a new instance of the logger
// Configure it to log at the desired level
// and format it as JSON for structured logging
var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
	environment := GetEnvWithDefault("APP_ENV", "development")
	switch environment {
	case "development":
		log.SetLevel(logrus.DebugLevel)
	case "production":
		log.SetLevel(logrus.ErrorLevel)
	default:
		// Default to info level for other environments
		log.SetLevel(logrus.InfoLevel)
	}
}

// Store backends for token records and the code redemption ledger
const (
	StoreDatabase = "database"
	StoreRedis    = "redis"
)

// Config used for the application configuration, loading the input from environment variables
type Config struct {
	// Server Configuration
	Port        int    `json:"port"`
	Host        string `json:"host"`
	Environment string `json:"environment"`

	// Database configuration
	DBDriver   string `json:"db_driver"`
	DBHost     string `json:"db_host"`
	DBPort     string `json:"db_port"`
	DBName     string `json:"db_name"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
	DBSSLMode  string `json:"db_sslmode"`
	DBPath     string `json:"db_path"`

	// Token store backend and its Redis connection
	StoreBackend  string `json:"store_backend"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	// Logging configuration
	LogLevel string `json:"log_level"`

	// OAuth core configuration
	OAuth *ServerConfig `json:"oauth"`
}

// String returns a string representation of Config with sensitive data masked
func (c *Config) String() string {
	return fmt.Sprintf("Config{Port: %d, Host: %s, Environment: %s, DBDriver: %s, DBHost: %s, DBName: %s, DBUser: %s, DBPassword: [REDACTED], DBPath: %s, StoreBackend: %s, RedisAddr: %s, RedisPassword: [REDACTED], LogLevel: %s, OAuth: %s}",
		c.Port, c.Host, c.Environment, c.DBDriver, c.DBHost, c.DBName, c.DBUser, c.DBPath, c.StoreBackend, maskURL(c.RedisAddr), c.LogLevel, c.OAuth)
}

// maskURL masks the password of a URL-shaped value
func maskURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[REDACTED_INVALID_URL]"
	}

	if parsed.User != nil {
		parsed.User = url.UserPassword(parsed.User.Username(), "[REDACTED]")
	}

	return parsed.String()
}

// LoadConfig read the proper configuration from environment variables and returns a Config struct
// The OAuth section is validated here so a misconfigured server never starts
// Returns an error if any required environment variable is missing or invalid
func LoadConfig() (*Config, error) {
	log.Info("Loading configuration from environment variables")
	port, err := strconv.Atoi(GetEnvWithDefault("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	redisDB, err := strconv.Atoi(GetEnvWithDefault("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	store := GetEnvWithDefault("STORE_BACKEND", StoreDatabase)
	if store != StoreDatabase && store != StoreRedis {
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q (supported: %s, %s)", store, StoreDatabase, StoreRedis)
	}
	redisAddr := GetEnvWithDefault("REDIS_ADDR", "")
	if store == StoreRedis && redisAddr == "" {
		return nil, errors.New("REDIS_ADDR environment variable is required when STORE_BACKEND=redis")
	}

	oauth, err := LoadServerConfig()
	if err != nil {
		return nil, err
	}

	config := &Config{
		Port:          port,
		Host:          GetEnvWithDefault("APP_HOST", "localhost"),
		Environment:   GetEnvWithDefault("APP_ENV", "development"),
		DBDriver:      GetEnvWithDefault("DB_DRIVER", "sqlite"),
		DBHost:        GetEnvWithDefault("DB_HOST", "localhost"),
		DBPort:        GetEnvWithDefault("DB_PORT", "5432"),
		DBName:        GetEnvWithDefault("DB_NAME", "authzilla"),
		DBUser:        GetEnvWithDefault("DB_USER", "authzilla"),
		DBPassword:    GetEnvWithDefault("DB_PASSWORD", ""),
		DBSSLMode:     GetEnvWithDefault("DB_SSLMODE", "disable"),
		DBPath:        GetEnvWithDefault("DB_PATH", "authzilla.sqlite"),
		StoreBackend:  store,
		RedisAddr:     redisAddr,
		RedisPassword: GetEnvWithDefault("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,
		LogLevel:      GetEnvWithDefault("LOG_LEVEL", "info"),
		OAuth:         oauth,
	}
	log.Infof("Configuration loaded: %s", config.String())
	return config, nil
}

// Helper to get environment with default values
func GetEnvWithDefault(key, defaultValue string) string {
	log.Tracef("Getting environment variable: %s", key)
	value := os.Getenv(key)
	if value == "" {
		log.Debugf("Environment variable %s not set, using default value", key)
		return defaultValue
	}
	return value
}

// GetEnvAsType retrieves an environment variable and converts it to the specified type
// using generic type handling.
func GetEnvAsType[T any](key string, defaultValue T) T {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result T
	switch any(result).(type) {
	case int:
		intValue, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return any(intValue).(T)
	case string:
		return any(value).(T)
	case bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return any(boolValue).(T)
	default:
		return defaultValue // Fallback for unsupported types
	}
}
