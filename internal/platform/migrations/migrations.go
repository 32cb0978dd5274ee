// Package migrations applies the console's database schema. Statements are
// idempotent and run in order on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		role_id INTEGER NOT NULL DEFAULT 3,
		partner_code TEXT,
		referred_by TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS forms (
		form_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		schema_json JSONB NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS incorporations (
		incorporation_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		company_type TEXT NOT NULL,
		formation_state TEXT NOT NULL,
		name_options TEXT[] NOT NULL DEFAULT '{}',
		state TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS form_submissions (
		submission_id TEXT PRIMARY KEY,
		form_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		incorporation_id TEXT,
		status TEXT NOT NULL,
		data_json JSONB NOT NULL,
		schema_snapshot JSONB,
		schema_hash TEXT,
		progress_percent INTEGER,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		submitted_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_form_submissions_key
		ON form_submissions (form_id, user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS billing_profiles (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		legal_name TEXT NOT NULL,
		tax_id TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		postal_code TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		incorporation_id TEXT,
		name TEXT NOT NULL,
		storage_path TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		size_bytes BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS services (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price_cents BIGINT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		incorporation_id TEXT,
		service_id TEXT NOT NULL,
		amount_cents BIGINT NOT NULL,
		fee_cents BIGINT NOT NULL DEFAULT 0,
		currency TEXT NOT NULL,
		provider_ref TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// Apply runs every schema statement against db in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
