package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the search service configuration.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Search     SearchConfig     `json:"search"`
	RateLimits RateLimitsConfig `json:"rateLimits"`
	GRPC       GRPCConfig       `json:"grpc"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	BaseRoute string `json:"baseRoute"`
	Debug     bool   `json:"debug"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Type     string           `json:"type"`
	Postgres PostgreSQLConfig `json:"postgres"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration
type PostgreSQLConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	Database        string        `json:"database"`
	DSN             string        `json:"dsn"`
	SSLMode         string        `json:"sslMode"`
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
	ConnectTimeout  int           `json:"connectTimeout"`
	QueryTimeout    time.Duration `json:"queryTimeout"`
}

// SearchConfig holds the limits applied to every search provider.
type SearchConfig struct {
	MaxPageSize     int    `json:"maxPageSize"`
	DefaultPageSize int    `json:"defaultPageSize"`
	MaxQueryDepth   int    `json:"maxQueryDepth"`
	MaxConditions   int    `json:"maxConditions"`
	CatalogPath     string `json:"catalogPath"`
}

// RateLimitConfig holds rate limiting configuration for a specific endpoint
type RateLimitConfig struct {
	Enabled  bool          `json:"enabled"`
	Max      int           `json:"max"`
	Duration time.Duration `json:"duration"`
}

// RateLimitsConfig holds rate limiting configuration for all endpoints
type RateLimitsConfig struct {
	Search RateLimitConfig `json:"search"`
}

// GRPCConfig holds the gRPC health server configuration. Port 0 disables it.
type GRPCConfig struct {
	HealthPort int `json:"healthPort"`
}

// LoadFromEnv loads configuration from the environment.
// It follows a clear precedence:
// 1. Explicit Environment Variables (e.g., set in the shell or by CI)
// 2. Values from the .env file (if it exists)
// 3. Hardcoded defaults (if applicable)
func LoadFromEnv() (*Config, error) {
	// godotenv.Load only sets variables that are not already set.
	envPaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	var loadErr error
	for _, envPath := range envPaths {
		loadErr = godotenv.Load(envPath)
		if loadErr == nil {
			break
		}
	}

	if loadErr != nil {
		fmt.Println("INFO: .env file not found, using environment variables and defaults.")
	}

	return load(func(key string) (string, bool) {
		value := os.Getenv(key)
		return value, value != ""
	})
}

// LoadFromMap loads configuration from an in-memory map.
// This is the primary helper for testing configuration logic in isolation
// without manipulating global environment variables.
func LoadFromMap(envMap map[string]string) (*Config, error) {
	return load(func(key string) (string, bool) {
		value, ok := envMap[key]
		return value, ok
	})
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	env := source{lookup: lookup}

	config := &Config{
		Server: ServerConfig{
			Host:      env.get("HOST", "localhost"),
			Port:      env.getInt("SERVER_PORT", 8080),
			BaseRoute: env.get("BASE_ROUTE", "/api"),
			Debug:     env.getBool("DEBUG", false),
		},
		Database: DatabaseConfig{
			Type: env.get("DB_TYPE", "postgresql"),
			Postgres: PostgreSQLConfig{
				Host:            env.get("POSTGRES_HOST", "localhost"),
				Port:            env.getInt("POSTGRES_PORT", 5432),
				Username:        env.get("POSTGRES_USERNAME", ""),
				Password:        env.get("POSTGRES_PASSWORD", ""),
				Database:        env.get("POSTGRES_DATABASE", "search"),
				DSN:             env.get("POSTGRES_DSN", ""),
				SSLMode:         env.get("POSTGRES_SSL_MODE", "disable"),
				MaxOpenConns:    env.getInt("POSTGRES_MAX_OPEN_CONNS", 25),
				MaxIdleConns:    env.getInt("POSTGRES_MAX_IDLE_CONNS", 25),
				ConnMaxLifetime: time.Duration(env.getInt("POSTGRES_CONN_MAX_LIFETIME", 300)) * time.Second,
				ConnectTimeout:  env.getInt("POSTGRES_CONNECT_TIMEOUT", 10),
				QueryTimeout:    env.getDuration("POSTGRES_QUERY_TIMEOUT", 5*time.Second),
			},
		},
		Search: SearchConfig{
			MaxPageSize:     env.getInt("SEARCH_MAX_PAGE_SIZE", 100),
			DefaultPageSize: env.getInt("SEARCH_DEFAULT_PAGE_SIZE", 20),
			MaxQueryDepth:   env.getInt("SEARCH_MAX_QUERY_DEPTH", 5),
			MaxConditions:   env.getInt("SEARCH_MAX_CONDITIONS", 50),
			CatalogPath:     env.get("SEARCH_CATALOG_PATH", "catalog.yaml"),
		},
		RateLimits: RateLimitsConfig{
			Search: RateLimitConfig{
				Enabled:  env.getBool("RATE_LIMIT_SEARCH_ENABLED", true),
				Max:      env.getInt("RATE_LIMIT_SEARCH_MAX", 120),
				Duration: env.getDuration("RATE_LIMIT_SEARCH_DURATION", time.Minute),
			},
		},
		GRPC: GRPCConfig{
			HealthPort: env.getInt("GRPC_HEALTH_PORT", 0),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration for required fields
func (c *Config) Validate() error {
	var errors []string

	validDbTypes := []string{"postgresql"}
	if !contains(validDbTypes, c.Database.Type) {
		errors = append(errors, fmt.Sprintf("DB_TYPE must be one of: %s", strings.Join(validDbTypes, ", ")))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if c.GRPC.HealthPort < 0 || c.GRPC.HealthPort > 65535 {
		errors = append(errors, "GRPC_HEALTH_PORT must be between 0 and 65535")
	}
	if c.GRPC.HealthPort != 0 && c.GRPC.HealthPort == c.Server.Port {
		errors = append(errors, "GRPC_HEALTH_PORT must differ from SERVER_PORT")
	}

	if c.Search.MaxPageSize < 1 {
		errors = append(errors, "SEARCH_MAX_PAGE_SIZE must be positive")
	}
	if c.Search.DefaultPageSize < 1 || c.Search.DefaultPageSize > c.Search.MaxPageSize {
		errors = append(errors, "SEARCH_DEFAULT_PAGE_SIZE must be between 1 and SEARCH_MAX_PAGE_SIZE")
	}
	if c.Search.MaxQueryDepth < 1 {
		errors = append(errors, "SEARCH_MAX_QUERY_DEPTH must be positive")
	}
	if c.Search.MaxConditions < 1 {
		errors = append(errors, "SEARCH_MAX_CONDITIONS must be positive")
	}
	if strings.TrimSpace(c.Search.CatalogPath) == "" {
		errors = append(errors, "SEARCH_CATALOG_PATH is required")
	}

	if c.Database.Postgres.QueryTimeout < 0 {
		errors = append(errors, "POSTGRES_QUERY_TIMEOUT must not be negative")
	}
	if c.RateLimits.Search.Enabled && (c.RateLimits.Search.Max < 1 || c.RateLimits.Search.Duration <= 0) {
		errors = append(errors, "RATE_LIMIT_SEARCH_MAX and RATE_LIMIT_SEARCH_DURATION must be positive when search rate limiting is enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// source reads typed values, falling back to the default when a key is
// missing or does not parse.
type source struct {
	lookup func(string) (string, bool)
}

func (s source) get(key, defaultValue string) string {
	if value, ok := s.lookup(key); ok {
		return value
	}
	return defaultValue
}

func (s source) getInt(key string, defaultValue int) int {
	if value, ok := s.lookup(key); ok {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (s source) getBool(key string, defaultValue bool) bool {
	if value, ok := s.lookup(key); ok {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func (s source) getDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := s.lookup(key); ok {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
