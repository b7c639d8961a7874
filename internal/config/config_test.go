package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"PORT", "APP_ENV", "ENVIRONMENT_FILE", "STORAGE_DRIVER", "DATABASE_PATH",
		"RESET_DATABASE", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "JWKS_CACHE_TTL", "CORS_ALLOWED_ORIGIN",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "" {
		t.Fatalf("expected empty port so the environment decides, got %s", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Fatalf("expected development environment, got %s", cfg.Environment)
	}
	if cfg.StorageDriver != StorageSQLite || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected storage defaults: %s %s", cfg.StorageDriver, cfg.DatabasePath)
	}
	if cfg.ShutdownGracePeriod != 10*time.Second {
		t.Fatalf("unexpected shutdown grace period: %s", cfg.ShutdownGracePeriod)
	}
	if !cfg.EnableRequestLogging || cfg.CORSAllowedOrigin != "*" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("RESET_DATABASE", "true")
	t.Setenv("RATE_LIMIT_RPS", "3.5")
	t.Setenv("RATE_LIMIT_BURST", "7")
	t.Setenv("JWKS_CACHE_TTL", "5m")

	cfg, err := Load(&CLIOverrides{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "9000" || cfg.Environment != "production" || cfg.StorageDriver != StorageMemory {
		t.Fatalf("expected env overrides, got %+v", cfg)
	}
	if !cfg.ResetDatabase {
		t.Fatalf("expected reset flag from environment")
	}
	if cfg.RateLimitRPS != 3.5 || cfg.RateLimitBurst != 7 {
		t.Fatalf("unexpected rate limit: %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.JWKSCacheTTL != 5*time.Minute {
		t.Fatalf("unexpected JWKS TTL: %s", cfg.JWKSCacheTTL)
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("RESET_DATABASE", "sometimes")

	if _, err := Load(nil); err == nil {
		t.Fatalf("expected error for malformed RESET_DATABASE")
	}
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_PATH", "/env/drinks.db")
	t.Setenv("APP_ENV", "dev")

	configFile := writeFile(t, "config.yaml", strings.Join([]string{
		"port: \"8000\"",
		"environment: production",
		"storage:",
		"  path: /yaml/drinks.db",
		"write_timeout: 2s",
		"enable_request_logging: false",
		"rate_limit:",
		"  rps: 0",
		"  burst: 0",
	}, "\n"))

	port := "9100"
	reset := true
	cfg, err := Load(&CLIOverrides{
		ConfigFile:    configFile,
		Port:          &port,
		ResetDatabase: &reset,
	})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "9100" {
		t.Fatalf("expected CLI port to win, got %s", cfg.Port)
	}
	if cfg.DatabasePath != "/yaml/drinks.db" || cfg.Environment != "production" {
		t.Fatalf("expected YAML to override environment variables, got %+v", cfg)
	}
	if cfg.WriteTimeout != 2*time.Second {
		t.Fatalf("unexpected write timeout %s", cfg.WriteTimeout)
	}
	if cfg.EnableRequestLogging {
		t.Fatalf("expected request logging disabled by YAML")
	}
	if cfg.RateLimitRPS != 0 || cfg.RateLimitBurst != 0 {
		t.Fatalf("expected explicit zero rate limit from YAML, got %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if !cfg.ResetDatabase {
		t.Fatalf("expected reset flag from CLI")
	}
}

func TestLoadRejectsInvalidYAMLDuration(t *testing.T) {
	clearEnv(t)

	configFile := writeFile(t, "config.yaml", "idle_timeout: soon\n")
	if _, err := Load(&CLIOverrides{ConfigFile: configFile}); err == nil {
		t.Fatalf("expected error for malformed duration")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearEnv(t)

	if _, err := Load(&CLIOverrides{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides a variable that is present, even if empty.
	if err := os.Unsetenv("CORS_ALLOWED_ORIGIN"); err != nil {
		t.Fatalf("unset: %v", err)
	}

	dotEnv := writeFile(t, "test.env", "CORS_ALLOWED_ORIGIN=http://localhost:8100\n")
	cfg, err := Load(&CLIOverrides{DotEnvFile: dotEnv})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.CORSAllowedOrigin != "http://localhost:8100" {
		t.Fatalf("expected origin from .env file, got %s", cfg.CORSAllowedOrigin)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "NegativeRPS", mutate: func(c *Config) { c.RateLimitRPS = -1 }},
		{name: "NegativeBurst", mutate: func(c *Config) { c.RateLimitBurst = -1 }},
		{name: "UnknownDriver", mutate: func(c *Config) { c.StorageDriver = "postgres" }},
		{name: "EmptySQLitePath", mutate: func(c *Config) { c.DatabasePath = " " }},
		{name: "ZeroJWKSTTL", mutate: func(c *Config) { c.JWKSCacheTTL = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			if err := validateConfig(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	memory := defaultConfig()
	memory.StorageDriver = StorageMemory
	memory.DatabasePath = ""
	if err := validateConfig(memory); err != nil {
		t.Fatalf("expected memory driver without path to be valid: %v", err)
	}
}
