package postgres

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	inventory "github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation-engine/pkg/outbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeLockNotAvailable = "55P03"
	codeCheckViolation   = "23514"
)

// ApplyStock writes changes inside tx. Rows are touched in ascending product id order and
// each update is a compare-and-set on the levels the change was computed from, so a row
// moved by another writer yields inventory.ErrConcurrentUpdate. Row lock waits are capped
// by lockTimeout.
func ApplyStock(ctx context.Context, tx pgx.Tx, changes []inventory.StockChange, lockTimeout time.Duration) error {
	if len(changes) == 0 {
		return nil
	}
	if lockTimeout > 0 {
		ms := strconv.FormatInt(lockTimeout.Milliseconds(), 10)
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms+"ms"); err != nil {
			return err
		}
	}

	ordered := slices.Clone(changes)
	slices.SortStableFunc(ordered, func(a, b inventory.StockChange) int { return cmp.Compare(a.ProductID, b.ProductID) })

	for _, c := range ordered {
		ct, err := tx.Exec(ctx, `
			UPDATE products SET stock_level=$2, reserved_stock=$3, updated_at=now()
			WHERE id=$1 AND stock_level=$4 AND reserved_stock=$5`,
			c.ProductID, c.After.StockLevel, c.After.ReservedStock, c.Before.StockLevel, c.Before.ReservedStock)
		if err != nil {
			return stockError(c, err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("product %d: %w", c.ProductID, inventory.ErrConcurrentUpdate)
		}
	}

	batch := &pgx.Batch{}
	for _, c := range changes {
		batch.Queue(`INSERT INTO stock_movements (product_id, kind, quantity, stock_level, reserved_stock, reference)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			c.ProductID, string(c.Kind), c.Quantity, c.After.StockLevel, c.After.ReservedStock, c.Reference)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func stockError(c inventory.StockChange, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable:
			return fmt.Errorf("product %d: %w: %w", c.ProductID, inventory.ErrBusy, err)
		case codeCheckViolation:
			return &inventory.InvariantViolationError{ProductID: c.ProductID, Op: c.Kind, Reserved: c.Before.ReservedStock, Quantity: c.Quantity}
		}
	}
	return err
}

// InsertOutbox stores events as pending rows inside tx.
func InsertOutbox(ctx context.Context, tx pgx.Tx, events []outbox.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		headers := e.Headers
		if headers == nil {
			headers = map[string]string{}
		}
		batch.Queue(`INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
			VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
			e.AggregateType, e.AggregateID, e.Type, e.Payload, headers, e.Traceparent)
	}
	return tx.SendBatch(ctx, batch).Close()
}
