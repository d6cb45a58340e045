package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PoolConfig sizes the database/sql pool behind a GormStorage.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns pool settings sized for a sweep worker running a
// handful of materializations in parallel next to interactive lifecycle calls.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}
}

// SQLitePoolConfig pins SQLite to one connection. SQLite serializes writers
// anyway, and a second connection to ":memory:" would open an empty
// database.
func SQLitePoolConfig() PoolConfig {
	return PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}
}

// poolDefaults picks the starting pool for a dialector name.
func poolDefaults(dialect string) PoolConfig {
	if dialect == "sqlite" {
		return SQLitePoolConfig()
	}
	return DefaultPoolConfig()
}

// PoolOption adjusts a PoolConfig.
type PoolOption interface {
	applyPool(*PoolConfig)
}

type poolOptionFunc func(*PoolConfig)

func (f poolOptionFunc) applyPool(c *PoolConfig) { f(c) }

func MaxOpenConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) { c.MaxOpenConns = n })
}

func MaxIdleConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) { c.MaxIdleConns = n })
}

func ConnMaxLifetime(d time.Duration) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) { c.ConnMaxLifetime = d })
}

func ConnMaxIdleTime(d time.Duration) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) { c.ConnMaxIdleTime = d })
}

// WithPoolConfig overlays p. Zero fields keep the dialect default, which is
// how Open applies the pool section of a config file.
func WithPoolConfig(p PoolConfig) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		if p.MaxOpenConns > 0 {
			c.MaxOpenConns = p.MaxOpenConns
		}
		if p.MaxIdleConns > 0 {
			c.MaxIdleConns = p.MaxIdleConns
		}
		if p.ConnMaxLifetime > 0 {
			c.ConnMaxLifetime = p.ConnMaxLifetime
		}
		if p.ConnMaxIdleTime > 0 {
			c.ConnMaxIdleTime = p.ConnMaxIdleTime
		}
	})
}

// ConfigurePool applies the dialect default and then opts to db.
func ConfigurePool(db *gorm.DB, opts ...PoolOption) error {
	var dialect string
	if db.Dialector != nil {
		dialect = db.Dialector.Name()
	}
	cfg := poolDefaults(dialect)
	for _, opt := range opts {
		opt.applyPool(&cfg)
	}
	if cfg.MaxIdleConns > cfg.MaxOpenConns && cfg.MaxOpenConns > 0 {
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("storage: pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return nil
}

// NewGormStorageWithPool is NewGormStorage after ConfigurePool.
//
//	store, err := NewGormStorageWithPool(db, MaxOpenConns(20))
func NewGormStorageWithPool(db *gorm.DB, opts ...PoolOption) (*GormStorage, error) {
	if err := ConfigurePool(db, opts...); err != nil {
		return nil, err
	}
	return NewGormStorage(db), nil
}
