package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/pricesync/internal/config"
	"github.com/rickgao/pricesync/internal/database"
)

// pgTables maps logical tables to SQL table names.
var pgTables = map[Table]string{
	TablePrices:       database.TablePrices,
	TableCustomAssets: database.TableCustomAssets,
	TableHiddenAssets: database.TableHiddenAssets,
}

// PostgresBackend stores tables in PostgreSQL with one JSONB row per key.
type PostgresBackend struct {
	cfg    config.DBConfig
	logger *slog.Logger
	pool   *pgxpool.Pool
	owned  bool
}

// NewPostgresBackend creates a backend that connects using cfg on Open.
func NewPostgresBackend(cfg config.DBConfig, logger *slog.Logger) *PostgresBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresBackend{cfg: cfg, logger: logger, owned: true}
}

// NewPostgresBackendWithPool creates a backend on an existing pool.
// Close leaves the pool open.
func NewPostgresBackendWithPool(pool *pgxpool.Pool, logger *slog.Logger) *PostgresBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresBackend{pool: pool, logger: logger}
}

func (b *PostgresBackend) Open(ctx context.Context) error {
	if b.pool == nil {
		pool, err := database.Connect(ctx, b.cfg)
		if err != nil {
			return err
		}
		b.pool = pool
	}

	if _, err := database.Migrate(ctx, b.pool, b.logger); err != nil {
		if b.owned {
			b.pool.Close()
			b.pool = nil
		}
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Get(ctx context.Context, table Table, key string) ([]byte, bool, error) {
	name, err := tableName(table)
	if err != nil {
		return nil, false, err
	}

	var data []byte
	err = b.pool.QueryRow(ctx, `SELECT record FROM `+name+` WHERE asset_id = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *PostgresBackend) Put(ctx context.Context, table Table, key string, value []byte) error {
	name, err := tableName(table)
	if err != nil {
		return err
	}

	_, err = b.pool.Exec(ctx, `
		INSERT INTO `+name+` (asset_id, record, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (asset_id) DO UPDATE SET record = EXCLUDED.record, updated_at = now()
	`, key, json.RawMessage(value))
	return err
}

func (b *PostgresBackend) Delete(ctx context.Context, table Table, key string) error {
	name, err := tableName(table)
	if err != nil {
		return err
	}

	_, err = b.pool.Exec(ctx, `DELETE FROM `+name+` WHERE asset_id = $1`, key)
	return err
}

func (b *PostgresBackend) Scan(ctx context.Context, table Table) (map[string][]byte, error) {
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}

	rows, err := b.pool.Query(ctx, `SELECT asset_id, record FROM `+name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		out[id] = data
	}
	return out, rows.Err()
}

func (b *PostgresBackend) Close() error {
	if b.owned && b.pool != nil {
		b.pool.Close()
		b.pool = nil
	}
	return nil
}

func tableName(t Table) (string, error) {
	name, ok := pgTables[t]
	if !ok {
		return "", fmt.Errorf("unknown table %q", t)
	}
	return name, nil
}
