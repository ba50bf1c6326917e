package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Supported drivers
const (
	DriverMemory = "memory"
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// Config selects and locates a backend
type Config struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Open creates the backend described by cfg
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverBolt:
		if err := ensureDir(cfg.Path); err != nil {
			return nil, err
		}
		s, err := NewBoltStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		if cfg.Path != ":memory:" {
			if err := ensureDir(cfg.Path); err != nil {
				return nil, err
			}
		}
		s, err := NewTableStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func ensureDir(path string) error {
	if path == "" {
		return fmt.Errorf("storage path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return unavailable("create storage dir", err)
	}
	return nil
}
