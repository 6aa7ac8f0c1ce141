package domain

import "time"

type MovementKind string

const (
	MovementReserve  MovementKind = "reserve"
	MovementRelease  MovementKind = "release"
	MovementFinalize MovementKind = "finalize"
	MovementReceive  MovementKind = "receive"
)

// StockChange is one applied ledger mutation. Before is the pair the mutation was computed
// from; stores persist After only if the stored pair still equals Before.
type StockChange struct {
	ProductID int64
	Kind      MovementKind
	Quantity  int
	Before    Levels
	After     Levels
	Reference string
}

// CrossedBelow reports whether the change took the available level from above threshold
// to at or below it.
func (c StockChange) CrossedBelow(threshold int) bool {
	return c.Before.StockLevel > threshold && c.After.StockLevel <= threshold
}

// Reserve moves qty units from available to reserved.
func (p Product) Reserve(qty int) (Product, StockChange, error) {
	if qty <= 0 {
		return p, StockChange{}, ErrInvalidQuantity
	}
	if p.StockLevel < qty {
		return p, StockChange{}, &InsufficientStockError{ProductID: p.ID, Requested: qty, Available: p.StockLevel}
	}
	return p.apply(MovementReserve, qty, "", Levels{
		StockLevel:    p.StockLevel - qty,
		ReservedStock: p.ReservedStock + qty,
	})
}

// Release returns qty reserved units to availability.
func (p Product) Release(qty int) (Product, StockChange, error) {
	if qty <= 0 {
		return p, StockChange{}, ErrInvalidQuantity
	}
	if p.ReservedStock < qty {
		return p, StockChange{}, &InvariantViolationError{ProductID: p.ID, Op: MovementRelease, Reserved: p.ReservedStock, Quantity: qty}
	}
	return p.apply(MovementRelease, qty, "", Levels{
		StockLevel:    p.StockLevel + qty,
		ReservedStock: p.ReservedStock - qty,
	})
}

// Finalize consumes qty reserved units; the goods have left inventory so the available
// level is not restored.
func (p Product) Finalize(qty int) (Product, StockChange, error) {
	if qty <= 0 {
		return p, StockChange{}, ErrInvalidQuantity
	}
	if p.ReservedStock < qty {
		return p, StockChange{}, &InvariantViolationError{ProductID: p.ID, Op: MovementFinalize, Reserved: p.ReservedStock, Quantity: qty}
	}
	return p.apply(MovementFinalize, qty, "", Levels{
		StockLevel:    p.StockLevel,
		ReservedStock: p.ReservedStock - qty,
	})
}

// Receive books a goods receipt (a supplier batch) into available stock.
func (p Product) Receive(qty int, ref string) (Product, StockChange, error) {
	if qty <= 0 {
		return p, StockChange{}, ErrInvalidQuantity
	}
	// the on-hand total bounds what a later release can put back into StockLevel
	if qty > MaxQuantity-p.StockLevel-p.ReservedStock {
		return p, StockChange{}, ErrQuantityTooLarge
	}
	return p.apply(MovementReceive, qty, ref, Levels{
		StockLevel:    p.StockLevel + qty,
		ReservedStock: p.ReservedStock,
	})
}

func (p Product) apply(kind MovementKind, qty int, ref string, after Levels) (Product, StockChange, error) {
	change := StockChange{
		ProductID: p.ID,
		Kind:      kind,
		Quantity:  qty,
		Before:    p.Levels(),
		After:     after,
		Reference: ref,
	}
	p.StockLevel = after.StockLevel
	p.ReservedStock = after.ReservedStock
	return p, change, nil
}

// Movement is the audit row recorded for every persisted StockChange.
type Movement struct {
	ID            int64
	ProductID     int64
	Kind          MovementKind
	Quantity      int
	StockLevel    int
	ReservedStock int
	Reference     string
	CreatedAt     time.Time
}
