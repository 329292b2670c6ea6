package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabriziosalmi/activitylogs/internal/config"
)

type DB struct {
	Pool       *pgxpool.Pool
	ExportRuns *ExportRunRepository
}

const schema = `CREATE TABLE IF NOT EXISTS export_runs (
	id               uuid PRIMARY KEY,
	window_start     timestamptz NOT NULL,
	window_end       timestamptz NOT NULL,
	status           text        NOT NULL,
	pages            integer     NOT NULL DEFAULT 0,
	record_count     bigint      NOT NULL DEFAULT 0,
	byte_count       bigint      NOT NULL DEFAULT 0,
	sha256           text        NOT NULL DEFAULT '',
	chain_hash       text        NOT NULL DEFAULT '',
	storage_key      text        NOT NULL DEFAULT '',
	storage_provider text        NOT NULL DEFAULT '',
	err_msg          text        NOT NULL DEFAULT '',
	started_at       timestamptz NOT NULL,
	finished_at      timestamptz NOT NULL,
	created_at       timestamptz NOT NULL DEFAULT now()
)`

// Connect returns a DB backed by a pgxpool.Pool configured from cfg and
// makes sure the ledger table exists.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("db: parse dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ensure schema: %w", err)
	}

	return &DB{
		Pool:       pool,
		ExportRuns: NewExportRunRepository(pool),
	}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}
