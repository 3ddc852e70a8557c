package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the bundles and audit_entries tables if needed.
// Keeping the migration in code lets docker-compose bootstrap everything.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS bundles (
	id TEXT PRIMARY KEY,
	exam_id TEXT NOT NULL,
	roll_number TEXT NOT NULL,
	policy TEXT NOT NULL,
	status TEXT NOT NULL,
	archive_key TEXT,
	manifest JSONB,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bundles_status ON bundles(status);
CREATE TABLE IF NOT EXISTS audit_entries (
	id BIGSERIAL PRIMARY KEY,
	file_name TEXT NOT NULL,
	exam_id TEXT NOT NULL,
	mode TEXT NOT NULL DEFAULT '',
	policy TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL,
	errors TEXT[],
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entries_exam ON audit_entries(exam_id);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
