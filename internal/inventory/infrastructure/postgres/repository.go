package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation-engine/internal/platform/postgres"
	"github.com/dmehra2102/stock-reservation-engine/pkg/outbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const productColumns = `id, name, category, stock_level, reserved_stock, cost_price_cents, price_cents, reorder_threshold, supplier_id, updated_at`

type Repository struct {
	log         *slog.Logger
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{log: log, pool: pool, lockTimeout: lockTimeout}
}

func (r *Repository) Products(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	list, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]domain.Product, len(list))
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

func (r *Repository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return scanProducts(rows)
}

func (r *Repository) SaveProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO products (id, name, category, stock_level, reserved_stock, cost_price_cents, price_cents, reorder_threshold, supplier_id, updated_at)
		VALUES ($1,$2,$3,$4,0,$5,$6,$7,$8,now())
		ON CONFLICT (id) DO UPDATE SET name=$2, category=$3, cost_price_cents=$5, price_cents=$6,
			reorder_threshold=$7, supplier_id=$8, updated_at=now()
		RETURNING `+productColumns,
		p.ID, p.Name, p.Category, p.StockLevel, p.CostPriceCents, p.PriceCents, p.ReorderThreshold, p.SupplierID)
	return scanProduct(row)
}

func (r *Repository) SaveStock(ctx context.Context, changes []domain.StockChange, events []outbox.Event) error {
	return postgres.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := postgres.ApplyStock(ctx, tx, changes, r.lockTimeout); err != nil {
			return err
		}
		return postgres.InsertOutbox(ctx, tx, events)
	})
}

func (r *Repository) Movements(ctx context.Context, productID int64, limit int) ([]domain.Movement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, product_id, kind, quantity, stock_level, reserved_stock, reference, created_at
		FROM stock_movements WHERE product_id=$1 ORDER BY id DESC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Movement
	for rows.Next() {
		var m domain.Movement
		var kind string
		if err := rows.Scan(&m.ID, &m.ProductID, &kind, &m.Quantity, &m.StockLevel, &m.ReservedStock, &m.Reference, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Kind = domain.MovementKind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.StockLevel, &p.ReservedStock, &p.CostPriceCents, &p.PriceCents, &p.ReorderThreshold, &p.SupplierID, &p.UpdatedAt)
	return p, err
}

func scanProducts(rows pgx.Rows) ([]domain.Product, error) {
	defer rows.Close()
	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
