package storage

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported journal drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the journal database and configures its pool. SQLite
// journals are limited to a single connection so that an in-memory database
// is shared by every caller.
func Open(driver, dsn string, opts ...PoolOption) (*GormStorage, error) {
	var dialector gorm.Dialector
	pool := DefaultPoolConfig()
	switch driver {
	case DriverSQLite, "sqlite3":
		dialector = sqlite.Open(dsn)
		pool = sqlitePool()
	case DriverPostgres, "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", driver, err)
	}
	if _, err := ConfigurePool(db, pool, opts...); err != nil {
		return nil, err
	}
	return NewGormStorage(db), nil
}

// Close releases the underlying connection pool.
func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
