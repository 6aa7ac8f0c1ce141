package application

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	inventory "github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation-engine/internal/order/domain"
	"github.com/dmehra2102/stock-reservation-engine/pkg/outbox"
)

// Reservation is a validated cart: one line per product, ascending by product id.
type Reservation struct {
	CustomerID string
	Lines      []domain.CartLine
}

func (r Reservation) ProductIDs() []int64 {
	ids := make([]int64, len(r.Lines))
	for i, l := range r.Lines {
		ids[i] = l.ProductID
	}
	return ids
}

// BuildReservation validates cart without touching stock. Lines for the same product are
// merged by summing their quantities; a line or merged total above inventory.MaxQuantity is
// rejected.
func BuildReservation(cart domain.Cart) (Reservation, error) {
	customer := strings.TrimSpace(cart.CustomerID)
	if customer == "" {
		return Reservation{}, &domain.ValidationError{Field: "customer_id", Reason: "is required"}
	}
	if len(cart.Lines) == 0 {
		return Reservation{}, domain.ErrEmptyCart
	}

	merged := make(map[int64]int, len(cart.Lines))
	for i, line := range cart.Lines {
		if line.ProductID <= 0 {
			return Reservation{}, &domain.ValidationError{Field: fmt.Sprintf("lines[%d].product_id", i), Reason: "must be positive"}
		}
		if line.Quantity <= 0 {
			return Reservation{}, &domain.ValidationError{Field: fmt.Sprintf("lines[%d].quantity", i), Reason: "must be positive"}
		}
		if line.Quantity > inventory.MaxQuantity-merged[line.ProductID] {
			return Reservation{}, &domain.ValidationError{Field: fmt.Sprintf("lines[%d].quantity", i),
				Reason: fmt.Sprintf("total for product %d exceeds %d", line.ProductID, inventory.MaxQuantity)}
		}
		merged[line.ProductID] += line.Quantity
	}

	lines := make([]domain.CartLine, 0, len(merged))
	for id, qty := range merged {
		lines = append(lines, domain.CartLine{ProductID: id, Quantity: qty})
	}
	slices.SortFunc(lines, func(a, b domain.CartLine) int { return cmp.Compare(a.ProductID, b.ProductID) })

	return Reservation{CustomerID: customer, Lines: lines}, nil
}

// reserve stages a reserve for every line while holding all product sections, then writes
// the order, the stock changes and their events in one go. Any failure leaves no trace.
func (s *Service) reserve(ctx context.Context, res Reservation, reorderedFrom, actor string) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.reserve")
	defer span.End()

	t, err := s.ledger.Begin(ctx, res.ProductIDs()...)
	if err != nil {
		return domain.Order{}, err
	}
	defer t.Close()

	items := make([]domain.OrderItem, 0, len(res.Lines))
	for _, line := range res.Lines {
		p, _ := t.Product(line.ProductID)
		if err := t.Reserve(line.ProductID, line.Quantity); err != nil {
			return domain.Order{}, err
		}
		items = append(items, domain.OrderItem{
			ProductID:      p.ID,
			ProductName:    p.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: p.PriceCents,
		})
	}

	o := domain.NewOrder(s.newID(), res.CustomerID, items, s.now())
	o.ReorderedFrom = reorderedFrom
	t.Reference(o.ID)

	events, err := t.Events(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	ev, err := orderEvent(ctx, o, actor)
	if err != nil {
		return domain.Order{}, err
	}
	if err := s.repo.Create(ctx, o, t.Changes(), append(events, ev)); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.log.Info("order reserved", "order_id", o.ID, "customer_id", o.CustomerID, "total_cents", o.TotalCents, "lines", len(o.Items))
	return o, nil
}

func orderEvent(ctx context.Context, o domain.Order, actor string) (outbox.Event, error) {
	return outbox.NewEvent(ctx, domain.AggregateOrder, o.ID, domain.EventType(o.Status), domain.NewOrderEvent(o, actor))
}

// isInvariantViolation reports ledger bugs that must be logged loudly.
func isInvariantViolation(err error) bool {
	var iv *inventory.InvariantViolationError
	return errors.As(err, &iv)
}
