package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	inventory "github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation-engine/internal/order/domain"
	"github.com/dmehra2102/stock-reservation-engine/internal/platform/postgres"
	"github.com/dmehra2102/stock-reservation-engine/pkg/outbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `id, customer_id, status, total_cents, reordered_from, created_at, updated_at, approved_at, completed_at, cancelled_at`

type Repository struct {
	log         *slog.Logger
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{log: log, pool: pool, lockTimeout: lockTimeout}
}

func (r *Repository) Create(ctx context.Context, o domain.Order, changes []inventory.StockChange, events []outbox.Event) error {
	return postgres.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := postgres.ApplyStock(ctx, tx, changes, r.lockTimeout); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `INSERT INTO orders (`+orderColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			o.ID, o.CustomerID, string(o.Status), o.TotalCents, o.ReorderedFrom, o.CreatedAt, o.UpdatedAt, o.ApprovedAt, o.CompletedAt, o.CancelledAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		batch := &pgx.Batch{}
		for _, item := range o.Items {
			batch.Queue(`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price_cents)
				VALUES ($1,$2,$3,$4,$5)`,
				o.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPriceCents)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}

		return postgres.InsertOutbox(ctx, tx, events)
	})
}

func (r *Repository) Transition(ctx context.Context, o domain.Order, from domain.Status, changes []inventory.StockChange, events []outbox.Event) error {
	return postgres.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			UPDATE orders SET status=$2, updated_at=$3, approved_at=$4, completed_at=$5, cancelled_at=$6
			WHERE id=$1 AND status=$7`,
			o.ID, string(o.Status), o.UpdatedAt, o.ApprovedAt, o.CompletedAt, o.CancelledAt, string(from))
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.ErrOrderNotFound
			}
			return domain.ErrStaleOrder
		}

		if err := postgres.ApplyStock(ctx, tx, changes, r.lockTimeout); err != nil {
			return err
		}
		return postgres.InsertOutbox(ctx, tx, events)
	})
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	items, err := r.items(ctx, []string{id})
	if err != nil {
		return domain.Order{}, err
	}
	o.Items = items[id]
	return o, nil
}

// List returns matching orders oldest first.
func (r *Repository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR customer_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at, id`, filter.CustomerID, string(filter.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	var ids []string
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []domain.Order{}, nil
	}

	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (r *Repository) TopSelling(ctx context.Context, limit int) ([]domain.ProductSales, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.product_id, p.name, SUM(i.quantity)::bigint, SUM(i.quantity * i.unit_price_cents)::bigint
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		JOIN products p ON p.id = i.product_id
		WHERE o.status = 'completed'
		GROUP BY i.product_id, p.name
		ORDER BY SUM(i.quantity) DESC, i.product_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ProductSales{}
	for rows.Next() {
		var ps domain.ProductSales
		if err := rows.Scan(&ps.ProductID, &ps.ProductName, &ps.Quantity, &ps.RevenueCents); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

func (r *Repository) items(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT order_id, product_id, product_name, quantity, unit_price_cents
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, product_id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPriceCents); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], item)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var status string
	err := row.Scan(&o.ID, &o.CustomerID, &status, &o.TotalCents, &o.ReorderedFrom, &o.CreatedAt, &o.UpdatedAt, &o.ApprovedAt, &o.CompletedAt, &o.CancelledAt)
	o.Status = domain.Status(status)
	return o, err
}
