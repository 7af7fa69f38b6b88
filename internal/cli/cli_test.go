package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pawtrait/pawtrait-api/internal/pkg/database"
)

func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db-driver", "sqlite", "--database-url", dbPath, "--ledger-store", "sql"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedUser(t *testing.T, dbPath string) uuid.UUID {
	t.Helper()
	db, err := database.NewSQLite(dbPath)
	require.NoError(t, err)
	defer database.Close(db)

	id := uuid.New()
	now := time.Now().UTC()
	_, err = db.ExecContext(context.Background(), db.Rebind(`
		INSERT INTO users (id, email, password_hash, role, credits, created_at, updated_at)
		VALUES (?, ?, 'x', 'user', 0, ?, ?)
	`), id, "cli@test.local", now, now)
	require.NoError(t, err)
	return id
}

func TestMigrateAndCredits(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	out, err := run(t, dbPath, "migrate")
	require.NoError(t, err)
	require.Contains(t, out, "schema up to date")

	id := seedUser(t, dbPath).String()

	out, err = run(t, dbPath, "credits", "apply", id, "--kind", "add", "--amount", "5", "--key", "support:42", "--reason", "goodwill")
	require.NoError(t, err)
	require.Contains(t, out, "applied add 5, balance 5")

	out, err = run(t, dbPath, "credits", "apply", id, "--kind", "add", "--amount", "5", "--key", "support:42", "--reason", "goodwill")
	require.NoError(t, err)
	require.Contains(t, out, "already applied, balance 5")

	out, err = run(t, dbPath, "credits", "apply", id, "--kind", "subtract", "--amount", "9", "--reason", "correction")
	require.Error(t, err)
	require.Contains(t, out, "rejected: insufficient_balance, balance 5")

	out, err = run(t, dbPath, "credits", "balance", id)
	require.NoError(t, err)
	require.Equal(t, "5\n", out)

	out, err = run(t, dbPath, "credits", "history", id)
	require.NoError(t, err)
	require.Contains(t, out, "support:42")
	require.Contains(t, out, "insufficient_balance")
}

func TestCreditsRejectsBadInput(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	_, err := run(t, dbPath, "migrate")
	require.NoError(t, err)

	_, err = run(t, dbPath, "credits", "balance", "not-a-uuid")
	require.ErrorContains(t, err, "invalid user id")

	_, err = run(t, dbPath, "credits", "apply", uuid.NewString(), "--kind", "triple", "--amount", "1", "--reason", "x")
	require.Error(t, err)

	_, err = run(t, dbPath, "credits", "balance", uuid.NewString())
	require.Error(t, err)
}
