package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newTestStorage returns a migrated journal: PostgreSQL when
// TEST_DATABASE_URL is set, otherwise a private in-memory SQLite database.
func newTestStorage(t *testing.T) *GormStorage {
	t.Helper()

	driver, dsn := DriverSQLite, ":memory:"
	var opts []PoolOption
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		driver, dsn = DriverPostgres, url
		opts = append(opts, WithMaxOpenConns(2), WithMaxIdleConns(1))
	}
	s, err := Open(driver, dsn, opts...)
	require.NoError(t, err, "open %s test journal", driver)

	cleanupPostgresDB(s.DB())
	t.Cleanup(func() {
		cleanupPostgresDB(s.DB())
		_ = s.Close()
	})
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s
}

func cleanupPostgresDB(db *gorm.DB) {
	if db.Dialector.Name() == "postgres" && db.Migrator().HasTable("invocations") {
		db.Exec("DELETE FROM invocations")
	}
}
