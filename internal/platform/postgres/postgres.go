package postgres

import (
	"context"
	"database/sql"
	"fmt"

	// pgx registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"muniapi/internal/platform/config"
)

// schema is applied on startup; statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS identifiers (
	entity_type  TEXT        NOT NULL,
	source       TEXT        NOT NULL,
	source_id    TEXT        NOT NULL,
	canonical_id UUID        NOT NULL UNIQUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (entity_type, source, source_id)
);
`

// Open connects to PostgreSQL through the pgx stdlib driver, verifies the
// connection and ensures the schema exists. Returns nil, nil when no URL is set.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the identifier schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
