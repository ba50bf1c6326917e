// Package config loads server configuration from defaults, an optional YAML
// file and PREMIA_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/premia/internal/storage"
)

// Environment variables overriding file settings
const (
	EnvConfig        = "PREMIA_CONFIG"
	EnvListen        = "PREMIA_LISTEN"
	EnvBasePath      = "PREMIA_BASE_PATH"
	EnvStorageDriver = "PREMIA_STORAGE_DRIVER"
	EnvStoragePath   = "PREMIA_STORAGE_PATH"
	EnvLogLevel      = "PREMIA_LOG_LEVEL"
	EnvLogFormat     = "PREMIA_LOG_FORMAT"
)

// Config is the full server configuration
type Config struct {
	Listen          string         `yaml:"listen"`
	BasePath        string         `yaml:"base_path"`
	Storage         storage.Config `yaml:"storage"`
	Log             LogConfig      `yaml:"log"`
	Health          HealthConfig   `yaml:"health"`
	ShutdownTimeout time.Duration  `yaml:"shutdown_timeout"`
}

// LogConfig selects logger level and output format
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HealthConfig tunes the storage probe behind /ready
type HealthConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxFailures int           `yaml:"max_failures"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Listen:  ":8080",
		Storage: storage.Config{Driver: storage.DriverMemory},
		Log:     LogConfig{Level: "info", Format: "text"},
		Health: HealthConfig{
			Interval:    10 * time.Second,
			MaxFailures: 3,
		},
		ShutdownTimeout: 5 * time.Second,
	}
}

// Load reads path (if non-empty), applies environment overrides and validates.
// An empty path falls back to $PREMIA_CONFIG.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Listen = getenv(EnvListen, cfg.Listen)
	cfg.BasePath = getenv(EnvBasePath, cfg.BasePath)
	cfg.Storage.Driver = getenv(EnvStorageDriver, cfg.Storage.Driver)
	cfg.Storage.Path = getenv(EnvStoragePath, cfg.Storage.Path)
	cfg.Log.Level = getenv(EnvLogLevel, cfg.Log.Level)
	cfg.Log.Format = getenv(EnvLogFormat, cfg.Log.Format)

	cfg.BasePath = normalizeBasePath(cfg.BasePath)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once
func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	switch c.Storage.Driver {
	case storage.DriverMemory:
	case storage.DriverBolt, storage.DriverSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Health.Interval <= 0 {
		errs = append(errs, errors.New("health.interval must be positive"))
	}
	if c.Health.MaxFailures <= 0 {
		errs = append(errs, errors.New("health.max_failures must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// normalizeBasePath turns "x/", "/x/" and "/x" into "/x", and "/" into ""
func normalizeBasePath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// getenv retrieves an environment variable with a default fallback value
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
