package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	TLSCert      string
	TLSKey       string
	BaseURL      string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int
}

type AuthConfig struct {
	SessionSecret        string
	SessionTTL           time.Duration
	AccessTokenTTL       time.Duration
	AuthorizationCodeTTL time.Duration
	SweepInterval        time.Duration
}

type SecurityConfig struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitBackend  string
	AllowedOrigins    []string
	MaxRequestSize    int64
	RequireHTTPS      bool
}

type LoggingConfig struct {
	Level  string
	Format string
	Caller bool
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
			TLSCert:      getEnv("TLS_CERT", ""),
			TLSKey:       getEnv("TLS_KEY", ""),
			BaseURL:      getEnv("BASE_URL", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "crednet_oauth"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			PoolSize: getIntEnv("REDIS_POOL_SIZE", 10),
		},
		Auth: AuthConfig{
			SessionSecret:        getEnv("SESSION_SECRET", ""),
			SessionTTL:           getDurationEnv("SESSION_TTL", 24*time.Hour),
			AccessTokenTTL:       getDurationEnv("ACCESS_TOKEN_TTL", time.Hour),
			AuthorizationCodeTTL: getDurationEnv("AUTH_CODE_TTL", 10*time.Minute),
			SweepInterval:        getDurationEnv("SWEEP_INTERVAL", time.Hour),
		},
		Security: SecurityConfig{
			RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 100),
			RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
			RateLimitBackend:  getEnv("RATE_LIMIT_BACKEND", "memory"),
			AllowedOrigins:    parseStringArray(getEnv("ALLOWED_ORIGINS", "*")),
			MaxRequestSize:    getInt64Env("MAX_REQUEST_SIZE", 1024*1024),
			RequireHTTPS:      getBoolEnv("REQUIRE_HTTPS", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Caller: getBoolEnv("LOG_CALLER", false),
		},
	}
}

// Validate rejects configurations the server cannot safely start with.
func (c *Config) Validate() error {
	if c.Auth.SessionSecret == "" {
		return errors.New("SESSION_SECRET must be set")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return errors.New("ACCESS_TOKEN_TTL must be positive")
	}
	if c.Auth.AuthorizationCodeTTL <= 0 {
		return errors.New("AUTH_CODE_TTL must be positive")
	}
	if c.Security.RateLimitBackend != "memory" && c.Security.RateLimitBackend != "redis" {
		return errors.New("RATE_LIMIT_BACKEND must be 'memory' or 'redis'")
	}
	if c.Security.RateLimitBackend == "redis" && !c.Redis.Enabled {
		return errors.New("RATE_LIMIT_BACKEND is 'redis' but REDIS_ENABLED is false")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func parseStringArray(value string) []string {
	if value == "" {
		return []string{}
	}
	if value == "*" {
		return []string{"*"}
	}
	return strings.Split(value, ",")
}
