package domain

import (
	"errors"
	"fmt"
	"math"
)

// MaxQuantity bounds every stock counter and requested quantity so it fits the INTEGER
// columns of the products table.
const MaxQuantity = math.MaxInt32

var (
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrQuantityTooLarge = fmt.Errorf("quantity would push stock past %d units", MaxQuantity)
	ErrInvalidProduct   = errors.New("invalid product")
	ErrConcurrentUpdate = errors.New("stock changed concurrently")
	// ErrBusy means the product critical sections could not be obtained in time. The
	// caller may retry.
	ErrBusy = errors.New("stock busy")
)

type UnknownProductError struct {
	ProductID int64
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("unknown product %d", e.ProductID)
}

type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// InvariantViolationError signals a ledger bug: a release or finalize asked for more units
// than are reserved. It is never a user error.
type InvariantViolationError struct {
	ProductID int64
	Op        MovementKind
	Reserved  int
	Quantity  int
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("stock invariant violated: %s of %d on product %d with only %d reserved", e.Op, e.Quantity, e.ProductID, e.Reserved)
}
