// Package dbtest opens throwaway migrated databases for tests.
package dbtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pawtrait/pawtrait-api/internal/pkg/database"
)

// NewSQLite returns a migrated SQLite database under t.TempDir.
func NewSQLite(t testing.TB) *database.DB {
	t.Helper()

	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

// NewPostgres connects to TEST_DATABASE_URL or skips the test.
func NewPostgres(t testing.TB) *database.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.NewPostgres(dsn)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })

	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

// CreateUser inserts a user with a zero balance and returns its id.
func CreateUser(t testing.TB, db *database.DB) uuid.UUID {
	t.Helper()

	id := uuid.New()
	now := time.Now().UTC()
	_, err := db.ExecContext(context.Background(), db.Rebind(`
		INSERT INTO users (id, email, password_hash, role, credits, created_at, updated_at)
		VALUES (?, ?, 'x', 'user', 0, ?, ?)
	`), id, id.String()+"@test.local", now, now)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), db.Rebind(`DELETE FROM users WHERE id = ?`), id)
	})
	return id
}
