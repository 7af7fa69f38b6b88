package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// schema is written once with type placeholders; each driver fills them in.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                      {{uuid}} PRIMARY KEY,
		email                   TEXT NOT NULL UNIQUE,
		password_hash           TEXT NOT NULL,
		role                    TEXT NOT NULL DEFAULT 'user',
		credits                 {{bigint}} NOT NULL DEFAULT 0 CHECK (credits >= 0),
		subscription_plan       TEXT NOT NULL DEFAULT 'free',
		subscription_status     TEXT NOT NULL DEFAULT 'inactive',
		subscription_expires_at {{timestamp}},
		created_at              {{timestamp}} NOT NULL,
		updated_at              {{timestamp}} NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS credit_operations (
		id               {{uuid}} PRIMARY KEY,
		account_id       {{uuid}} NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		kind             TEXT NOT NULL,
		amount           {{bigint}} NOT NULL,
		idempotency_key  TEXT,
		balance_after    {{bigint}} NOT NULL,
		applied          BOOLEAN NOT NULL,
		rejection_reason TEXT NOT NULL DEFAULT '',
		source           TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL DEFAULT '',
		requested_at     {{timestamp}} NOT NULL,
		created_at       {{timestamp}} NOT NULL
	)`,
	// Only applied operations claim their key, so a rejected attempt can be retried later.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_operations_key
		ON credit_operations(account_id, idempotency_key) WHERE applied`,
	`CREATE INDEX IF NOT EXISTS idx_credit_operations_account
		ON credit_operations(account_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id                {{uuid}} PRIMARY KEY,
		user_id           {{uuid}} NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		provider_order_id TEXT NOT NULL UNIQUE,
		purpose           TEXT NOT NULL,
		item_id           TEXT NOT NULL,
		credits           {{bigint}} NOT NULL DEFAULT 0,
		amount            {{money}} NOT NULL,
		currency          TEXT NOT NULL,
		status            TEXT NOT NULL DEFAULT 'pending',
		captured_at       {{timestamp}},
		created_at        {{timestamp}} NOT NULL,
		updated_at        {{timestamp}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_user ON payments(user_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS generations (
		id               {{uuid}} PRIMARY KEY,
		user_id          {{uuid}} NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		style            TEXT NOT NULL,
		pet_name         TEXT NOT NULL DEFAULT '',
		source_image_url TEXT NOT NULL,
		prompt           TEXT NOT NULL,
		status           TEXT NOT NULL,
		attempt          TEXT,
		result_url       TEXT,
		error_message    TEXT,
		created_at       {{timestamp}} NOT NULL,
		updated_at       {{timestamp}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_generations_user ON generations(user_id, created_at)`,
}

var dialects = map[string]*strings.Replacer{
	DriverPostgres: strings.NewReplacer(
		"{{uuid}}", "UUID",
		"{{bigint}}", "BIGINT",
		"{{timestamp}}", "TIMESTAMPTZ",
		"{{money}}", "NUMERIC(12,2)",
	),
	DriverSQLite: strings.NewReplacer(
		"{{uuid}}", "TEXT",
		"{{bigint}}", "INTEGER",
		"{{timestamp}}", "TIMESTAMP",
		"{{money}}", "TEXT",
	),
}

// Statements returns the schema rendered for driver.
func Statements(driver string) ([]string, error) {
	r, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	out := make([]string, 0, len(schema))
	for _, stmt := range schema {
		out = append(out, r.Replace(stmt))
	}
	return out, nil
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *DB) error {
	stmts, err := Statements(db.Driver)
	if err != nil {
		return err
	}

	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	log.Info().Str("driver", db.Driver).Int("statements", len(stmts)).Msg("Schema migrated")
	return nil
}
