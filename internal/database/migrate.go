package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaVersion is the schema version this build writes.
const SchemaVersion = 2

// Table names for the logical cache tables.
const (
	TablePrices       = "prices"
	TableCustomAssets = "custom_assets"
	TableHiddenAssets = "hidden_assets"
)

// tableDDL creates each table if missing. Statements never drop or alter
// existing tables, so running them against any schema version is safe.
var tableDDL = []string{
	`CREATE TABLE IF NOT EXISTS ` + TablePrices + ` (
		asset_id   TEXT PRIMARY KEY,
		record     JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableCustomAssets + ` (
		asset_id   TEXT PRIMARY KEY,
		record     JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableHiddenAssets + ` (
		asset_id   TEXT PRIMARY KEY,
		record     JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate brings the schema up to SchemaVersion. When the stored version
// differs in either direction, missing tables are created and the stored
// version is raised to at least SchemaVersion. Returns the version found.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		id      INT PRIMARY KEY CHECK (id = 1),
		version INT NOT NULL
	)`); err != nil {
		return 0, fmt.Errorf("create schema_version: %w", err)
	}

	var found int
	err = tx.QueryRow(ctx, `SELECT version FROM schema_version WHERE id = 1`).Scan(&found)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	if found == SchemaVersion {
		return found, tx.Commit(ctx)
	}

	for _, ddl := range tableDDL {
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return found, fmt.Errorf("create table: %w", err)
		}
	}

	target := max(found, SchemaVersion)
	if _, err := tx.Exec(ctx, `
		INSERT INTO schema_version (id, version) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version
	`, target); err != nil {
		return found, fmt.Errorf("write schema version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return found, fmt.Errorf("commit migration: %w", err)
	}

	logger.Info("schema migrated", "from", found, "to", target)
	return found, nil
}
