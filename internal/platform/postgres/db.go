// Package postgres holds the pieces shared by the per-context Postgres repositories: the
// pool, the schema, the stock ledger write path and the outbox store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		stock_level INTEGER NOT NULL CHECK (stock_level >= 0),
		reserved_stock INTEGER NOT NULL DEFAULT 0 CHECK (reserved_stock >= 0),
		cost_price_cents BIGINT NOT NULL DEFAULT 0,
		price_cents BIGINT NOT NULL CHECK (price_cents >= 0),
		reorder_threshold INTEGER NOT NULL DEFAULT 0,
		supplier_id BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('reserved','approved','completed','cancelled')),
		total_cents BIGINT NOT NULL,
		reordered_from TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		approved_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		cancelled_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer_id ON orders(customer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,

	`CREATE TABLE IF NOT EXISTS order_items (
		order_id TEXT NOT NULL REFERENCES orders(id),
		product_id BIGINT NOT NULL REFERENCES products(id),
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price_cents BIGINT NOT NULL,
		PRIMARY KEY (order_id, product_id)
	)`,

	`CREATE TABLE IF NOT EXISTS stock_movements (
		id BIGSERIAL PRIMARY KEY,
		product_id BIGINT NOT NULL REFERENCES products(id),
		kind TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		stock_level INTEGER NOT NULL,
		reserved_stock INTEGER NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_product_id ON stock_movements(product_id, id DESC)`,

	`CREATE TABLE IF NOT EXISTS outbox (
		id BIGSERIAL PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		type TEXT NOT NULL,
		payload JSONB NOT NULL,
		headers JSONB NOT NULL DEFAULT '{}',
		traceparent TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		relay_id TEXT,
		lease_until TIMESTAMPTZ,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox(status, id)`,
}

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// InTx runs fn in a transaction that is committed only if fn returns nil.
func InTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
