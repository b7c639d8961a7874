package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultDatabasePath   = "database.db"
	defaultDotEnvFile     = ".env"
)

// Storage drivers accepted by StorageDriver.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	// Port is empty unless set explicitly; the server then listens on the
	// port of the active environment's apiServerUrl.
	Port                 string
	Environment          string
	EnvironmentFile      string
	StorageDriver        string
	DatabasePath         string
	ResetDatabase        bool
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	JWKSCacheTTL         time.Duration
	CORSAllowedOrigin    string
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string        `yaml:"port"`
	Environment          string        `yaml:"environment"`
	EnvironmentFile      string        `yaml:"environment_file"`
	Storage              yamlStorage   `yaml:"storage"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
	JWKSCacheTTL         string        `yaml:"jwks_cache_ttl"`
	CORSAllowedOrigin    string        `yaml:"cors_allowed_origin"`
}

// yamlStorage represents the storage section in YAML.
type yamlStorage struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	Reset  *bool  `yaml:"reset"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile      string
	DotEnvFile      string
	Port            *string
	Environment     *string
	EnvironmentFile *string
	StorageDriver   *string
	DatabasePath    *string
	ResetDatabase   *bool
	RateLimitRPS    *float64
	RateLimitBurst  *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	dotEnv := defaultDotEnvFile
	if overrides != nil && overrides.DotEnvFile != "" {
		dotEnv = overrides.DotEnvFile
	}
	if err := loadDotEnv(dotEnv); err != nil {
		return Config{}, fmt.Errorf("load %s: %w", dotEnv, err)
	}

	// Apply environment variables
	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, err
	}

	// Load from YAML file if specified (overrides environment variables)
	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, err
		}
	}

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	// Validate final configuration
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Environment:          "development",
		StorageDriver:        StorageSQLite,
		DatabasePath:         defaultDatabasePath,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		JWKSCacheTTL:         time.Hour,
		CORSAllowedOrigin:    "*",
	}
}

// loadDotEnv exports the variables of a .env file into the process
// environment. Variables that are already set win; a missing file is fine.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}
	if yamlCfg.Environment != "" {
		cfg.Environment = yamlCfg.Environment
	}
	if yamlCfg.EnvironmentFile != "" {
		cfg.EnvironmentFile = yamlCfg.EnvironmentFile
	}
	if yamlCfg.Storage.Driver != "" {
		cfg.StorageDriver = yamlCfg.Storage.Driver
	}
	if yamlCfg.Storage.Path != "" {
		cfg.DatabasePath = yamlCfg.Storage.Path
	}
	if yamlCfg.Storage.Reset != nil {
		cfg.ResetDatabase = *yamlCfg.Storage.Reset
	}

	durations := []struct {
		key    string
		raw    string
		target *time.Duration
	}{
		{"shutdown_grace_period", yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"read_header_timeout", yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", yamlCfg.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", yamlCfg.IdleTimeout, &cfg.IdleTimeout},
		{"jwks_cache_ttl", yamlCfg.JWKSCacheTTL, &cfg.JWKSCacheTTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		value, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.target = value
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}
	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}
	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}
	if yamlCfg.CORSAllowedOrigin != "" {
		cfg.CORSAllowedOrigin = yamlCfg.CORSAllowedOrigin
	}

	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) error {
	if port := envValue("PORT"); port != "" {
		cfg.Port = port
	}
	if name := envValue("APP_ENV"); name != "" {
		cfg.Environment = name
	}
	if path := envValue("ENVIRONMENT_FILE"); path != "" {
		cfg.EnvironmentFile = path
	}
	if driver := envValue("STORAGE_DRIVER"); driver != "" {
		cfg.StorageDriver = driver
	}
	if path := envValue("DATABASE_PATH"); path != "" {
		cfg.DatabasePath = path
	}
	if origin := envValue("CORS_ALLOWED_ORIGIN"); origin != "" {
		cfg.CORSAllowedOrigin = origin
	}

	if raw := envValue("RESET_DATABASE"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("RESET_DATABASE: %w", err)
		}
		cfg.ResetDatabase = value
	}

	if rps := envValue("RATE_LIMIT_RPS"); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := envValue("RATE_LIMIT_BURST"); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}

	if ttl := envValue("JWKS_CACHE_TTL"); ttl != "" {
		value, err := time.ParseDuration(ttl)
		if err != nil {
			return fmt.Errorf("JWKS_CACHE_TTL: %w", err)
		}
		cfg.JWKSCacheTTL = value
	}

	return nil
}

func envValue(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}
	if overrides.Environment != nil && *overrides.Environment != "" {
		cfg.Environment = *overrides.Environment
	}
	if overrides.EnvironmentFile != nil && *overrides.EnvironmentFile != "" {
		cfg.EnvironmentFile = *overrides.EnvironmentFile
	}
	if overrides.StorageDriver != nil && *overrides.StorageDriver != "" {
		cfg.StorageDriver = *overrides.StorageDriver
	}
	if overrides.DatabasePath != nil && *overrides.DatabasePath != "" {
		cfg.DatabasePath = *overrides.DatabasePath
	}
	if overrides.ResetDatabase != nil {
		cfg.ResetDatabase = *overrides.ResetDatabase
	}
	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}
	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	switch cfg.StorageDriver {
	case StorageMemory:
	case StorageSQLite:
		if strings.TrimSpace(cfg.DatabasePath) == "" {
			return fmt.Errorf("database path cannot be empty for the %s driver", StorageSQLite)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
	if cfg.JWKSCacheTTL <= 0 {
		return fmt.Errorf("JWKS cache TTL must be positive")
	}
	return nil
}
