// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"insightline/internal/db"
	"insightline/internal/migrate"
)

// OpenDB opens a migrated SQLite database in a temp dir and closes it on cleanup.
func OpenDB(t testing.TB) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "insightline.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	return conn
}
