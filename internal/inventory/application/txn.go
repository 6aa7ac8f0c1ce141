package application

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation-engine/pkg/outbox"
)

// Txn stages ledger mutations over a fixed set of products while holding their critical
// sections. Nothing is durable until the staged changes are persisted by the caller (or
// by Commit); a failed mutation leaves the staged state as it was.
type Txn struct {
	ledger   *Ledger
	products map[int64]domain.Product
	changes  []domain.StockChange
	unlock   func()
}

func (t *Txn) Product(id int64) (domain.Product, bool) {
	p, ok := t.products[id]
	return p, ok
}

func (t *Txn) Reserve(id int64, qty int) error {
	return t.stage(id, func(p domain.Product) (domain.Product, domain.StockChange, error) {
		return p.Reserve(qty)
	})
}

func (t *Txn) Release(id int64, qty int) error {
	return t.stage(id, func(p domain.Product) (domain.Product, domain.StockChange, error) {
		return p.Release(qty)
	})
}

func (t *Txn) Finalize(id int64, qty int) error {
	return t.stage(id, func(p domain.Product) (domain.Product, domain.StockChange, error) {
		return p.Finalize(qty)
	})
}

func (t *Txn) Receive(id int64, qty int, ref string) error {
	return t.stage(id, func(p domain.Product) (domain.Product, domain.StockChange, error) {
		return p.Receive(qty, ref)
	})
}

// Reference stamps ref on every staged change that has none, so movements can be traced
// back to the order that caused them.
func (t *Txn) Reference(ref string) {
	for i := range t.changes {
		if t.changes[i].Reference == "" {
			t.changes[i].Reference = ref
		}
	}
}

func (t *Txn) Changes() []domain.StockChange {
	out := make([]domain.StockChange, len(t.changes))
	copy(out, t.changes)
	return out
}

// Events builds the outbox events implied by the staged changes: one StockReceived per
// receipt and one LowStockDetected per product whose available level dropped to or below
// its reorder threshold.
func (t *Txn) Events(ctx context.Context) ([]outbox.Event, error) {
	var events []outbox.Event
	alerted := make(map[int64]bool)
	for _, c := range t.changes {
		p := t.products[c.ProductID]
		aggID := strconv.FormatInt(c.ProductID, 10)

		if c.Kind == domain.MovementReceive {
			ev, err := outbox.NewEvent(ctx, domain.AggregateProduct, aggID, domain.EventStockReceived, domain.StockReceived{
				ProductID:  c.ProductID,
				Quantity:   c.Quantity,
				Reference:  c.Reference,
				StockLevel: c.After.StockLevel,
			})
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}

		if alerted[c.ProductID] || !c.CrossedBelow(p.ReorderThreshold) {
			continue
		}
		alerted[c.ProductID] = true
		t.ledger.log.Warn("product stock at or below reorder threshold",
			"product_id", c.ProductID, "stock_level", c.After.StockLevel, "reorder_threshold", p.ReorderThreshold)
		ev, err := outbox.NewEvent(ctx, domain.AggregateProduct, aggID, domain.EventLowStockDetected, domain.LowStockDetected{
			ProductID:        c.ProductID,
			Name:             p.Name,
			StockLevel:       c.After.StockLevel,
			ReservedStock:    c.After.ReservedStock,
			ReorderThreshold: p.ReorderThreshold,
			SupplierID:       p.SupplierID,
		})
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Commit persists the staged changes through the ledger's repository together with extra
// events.
func (t *Txn) Commit(ctx context.Context, extra ...outbox.Event) error {
	if len(t.changes) == 0 {
		return nil
	}
	events, err := t.Events(ctx)
	if err != nil {
		return err
	}
	if err := t.ledger.repo.SaveStock(ctx, t.changes, append(events, extra...)); err != nil {
		return fmt.Errorf("save stock: %w", err)
	}
	return nil
}

// Close releases the critical sections. It is safe to call more than once.
func (t *Txn) Close() {
	t.unlock()
}

func (t *Txn) stage(id int64, op func(domain.Product) (domain.Product, domain.StockChange, error)) error {
	p, ok := t.products[id]
	if !ok {
		return &domain.UnknownProductError{ProductID: id}
	}
	next, change, err := op(p)
	if err != nil {
		return err
	}
	t.products[id] = next
	t.changes = append(t.changes, change)
	return nil
}
