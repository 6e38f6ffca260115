package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// OpenTest opens a migrated SQLite database in a temporary directory.
// It is shared by the test suites of packages that need a real store.
func OpenTest(t testing.TB) *DB {
	t.Helper()

	db, err := Open(Config{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "exitcall.db"),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
