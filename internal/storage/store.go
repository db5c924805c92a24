package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"coverwatcher/internal/config"
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

const createSchemaSQL = `
CREATE TABLE IF NOT EXISTS cycle_samples (
    cycle_ts      timestamptz PRIMARY KEY,
    sun_azimuth   double precision NOT NULL,
    sun_elevation double precision NOT NULL,
    forecast_max  numeric NOT NULL,
    temp_hot      boolean NOT NULL,
    weather_sunny boolean NOT NULL,
    covers_total  integer NOT NULL,
    covers_moved  integer NOT NULL,
    status        text NOT NULL,
    message       text,
    created_at    timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cover_movements (
    id            bigserial PRIMARY KEY,
    cycle_ts      timestamptz NOT NULL,
    cover_id      text NOT NULL,
    reason        text NOT NULL,
    from_position integer NOT NULL,
    to_position   integer NOT NULL,
    created_at    timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS cover_movements_cycle_ts_idx ON cover_movements (cycle_ts);
CREATE INDEX IF NOT EXISTS cover_movements_cover_id_idx ON cover_movements (cover_id);
`

// EnsureSchema creates the audit tables if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
