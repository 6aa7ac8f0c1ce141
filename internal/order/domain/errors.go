package domain

import (
	"errors"
	"fmt"
)

var ErrOrderNotFound = errors.New("order not found")

// ErrEmptyCart is the ValidationError for a cart with no lines.
var ErrEmptyCart = &ValidationError{Field: "lines", Reason: "cart is empty"}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type InvalidTransitionError struct {
	From  Status
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s an order in status %s", e.Event, e.From)
}

// ErrStaleOrder means the stored order left the expected status between read and write.
var ErrStaleOrder = errors.New("order changed concurrently")
