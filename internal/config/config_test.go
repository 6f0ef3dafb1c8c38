package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Server.Port == "" {
		t.Error("Server port should have a default")
	}
	if cfg.Auth.AccessTokenTTL != time.Hour {
		t.Errorf("Expected 1h access token TTL, got %v", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Auth.AuthorizationCodeTTL != 10*time.Minute {
		t.Errorf("Expected 10m code TTL, got %v", cfg.Auth.AuthorizationCodeTTL)
	}
	if cfg.Security.RateLimitBackend != "memory" {
		t.Errorf("Expected memory rate limit backend, got %s", cfg.Security.RateLimitBackend)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ACCESS_TOKEN_TTL", "30m")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg := Load()

	if cfg.Server.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Auth.AccessTokenTTL != 30*time.Minute {
		t.Errorf("Expected 30m TTL, got %v", cfg.Auth.AccessTokenTTL)
	}
	if !cfg.Redis.Enabled {
		t.Error("Expected Redis to be enabled")
	}
	if len(cfg.Security.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 allowed origins, got %v", cfg.Security.AllowedOrigins)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL", "not-a-duration")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()

	if cfg.Auth.AccessTokenTTL != time.Hour {
		t.Errorf("Malformed duration should fall back to default, got %v", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Redis.DB != 0 {
		t.Errorf("Malformed int should fall back to default, got %d", cfg.Redis.DB)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		os.Setenv("SESSION_SECRET", "s3cret")
		defer os.Unsetenv("SESSION_SECRET")
		return Load()
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}

	cfg = base()
	cfg.Auth.SessionSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for missing session secret")
	}

	cfg = base()
	cfg.Auth.AccessTokenTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero access token TTL")
	}

	cfg = base()
	cfg.Security.RateLimitBackend = "dynamo"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for unknown rate limit backend")
	}

	cfg = base()
	cfg.Security.RateLimitBackend = "redis"
	cfg.Redis.Enabled = false
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for redis backend without redis enabled")
	}
}
