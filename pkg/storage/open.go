package storage

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config selects and tunes the database behind a GormStorage.
//
// Driver values:
//   - "sqlite" (default): DSN is a file path or a SQLite URI
//   - "postgres": DSN is a libpq connection string or URL
type Config struct {
	Driver   string
	DSN      string
	LogLevel string // silent, error, warn or info
	Pool     PoolConfig
}

// Dialector returns the GORM dialector for cfg.
func Dialector(cfg Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("storage: sqlite dsn is required")
		}
		return sqlite.Open(cfg.DSN), nil
	case "postgres", "postgresql":
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("storage: postgres dsn is required")
		}
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

// LogMode maps a level name to a GORM log level. Unknown names are silent.
func LogMode(level string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return logger.Info
	case "warn", "warning":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}

// Open connects to the configured database, applies the pool settings and
// migrates the schema.
func Open(ctx context.Context, cfg Config) (*GormStorage, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(LogMode(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dialector.Name(), err)
	}

	store, err := NewGormStorageWithPool(db, WithPoolConfig(cfg.Pool))
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return store, nil
}
