package database

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatementsRenderPerDriver(t *testing.T) {
	pg, err := Statements(DriverPostgres)
	require.NoError(t, err)
	lite, err := Statements(DriverSQLite)
	require.NoError(t, err)
	require.Len(t, lite, len(pg))

	for _, stmt := range append(pg, lite...) {
		require.NotContains(t, stmt, "{{")
	}
	require.True(t, strings.Contains(pg[0], "UUID PRIMARY KEY"))
	require.True(t, strings.Contains(lite[0], "TEXT PRIMARY KEY"))

	_, err = Statements("mysql")
	require.Error(t, err)
}

func TestMigrateSQLiteIsRepeatable(t *testing.T) {
	db, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer Close(db)

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db))

	var n int
	require.NoError(t, db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'credit_operations', 'payments', 'generations')`))
	require.Equal(t, 4, n)
}

func TestIsUniqueViolationSQLite(t *testing.T) {
	db, err := NewSQLite(filepath.Join(t.TempDir(), "unique.db"))
	require.NoError(t, err)
	defer Close(db)

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT UNIQUE)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES ('a', 'x')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES ('b', 'x')`)
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err))

	require.False(t, IsUniqueViolation(nil))
	require.False(t, IsUniqueViolation(context.Canceled))
}
