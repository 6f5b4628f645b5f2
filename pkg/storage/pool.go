package storage

import (
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PoolConfig sizes the journal's connection pool. It is also the shape of
// the journal.pool section of the parent configuration file.
type PoolConfig struct {
	MaxOpenConns    int           `yaml:"maxOpenConns,omitempty"`
	MaxIdleConns    int           `yaml:"maxIdleConns,omitempty"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime,omitempty"`
	ConnMaxIdleTime time.Duration `yaml:"connMaxIdleTime,omitempty"`
}

// DefaultPoolConfig returns the pool used for journals. A call costs two
// short statements, so the pool stays small.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    4,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}
}

// sqlitePool pins the journal to one long-lived connection; each new
// connection to ":memory:" would otherwise see an empty database.
func sqlitePool() PoolConfig {
	return PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}
}

func (c PoolConfig) apply(db *sql.DB) {
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
	db.SetConnMaxIdleTime(c.ConnMaxIdleTime)
}

// PoolOption adjusts a PoolConfig.
type PoolOption func(*PoolConfig)

// WithMaxOpenConns caps the number of open connections.
func WithMaxOpenConns(n int) PoolOption {
	return func(c *PoolConfig) { c.MaxOpenConns = n }
}

// WithMaxIdleConns caps the number of idle connections.
func WithMaxIdleConns(n int) PoolOption {
	return func(c *PoolConfig) { c.MaxIdleConns = n }
}

// WithConnMaxLifetime bounds how long a connection is reused.
func WithConnMaxLifetime(d time.Duration) PoolOption {
	return func(c *PoolConfig) { c.ConnMaxLifetime = d }
}

// WithPoolConfig overlays the non-zero fields of p.
func WithPoolConfig(p PoolConfig) PoolOption {
	return func(c *PoolConfig) {
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
	}
}

// ConfigurePool applies base, then opts, to the pool behind db and returns
// the effective configuration.
func ConfigurePool(db *gorm.DB, base PoolConfig, opts ...PoolOption) (PoolConfig, error) {
	cfg := base
	for _, opt := range opts {
		opt(&cfg)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return cfg, fmt.Errorf("storage: underlying *sql.DB: %w", err)
	}
	cfg.apply(sqlDB)
	return cfg, nil
}

// NewGormStorageWithPool creates a journal over db with the default pool
// adjusted by opts.
func NewGormStorageWithPool(db *gorm.DB, opts ...PoolOption) (*GormStorage, error) {
	if _, err := ConfigurePool(db, DefaultPoolConfig(), opts...); err != nil {
		return nil, err
	}
	return NewGormStorage(db), nil
}
