package testdb

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/remora-tools/remora/pkg/scrub/sqlrepo"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// CreateTestDB creates a temporary SQLite database with the checkpoint
// schema applied, closed automatically when the test ends.
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Give each test its own database file to avoid cross-test contention and
	// limit the connection pool to a single connection so modernc SQLite
	// doesn't deadlock waiting on internal locks.
	d := t.TempDir()
	dsn := fmt.Sprintf("file:%s/testdb_%d.db", d, time.Now().UnixNano())

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err, "failed to open SQLite database")
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	t.Cleanup(func() {
		db.Close()
	})

	_, err = db.ExecContext(t.Context(), sqlrepo.Schema)
	require.NoError(t, err, "failed to execute schema")

	return db
}
