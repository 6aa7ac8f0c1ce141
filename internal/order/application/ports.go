package application

import (
	"context"

	inventory "github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation-engine/internal/order/domain"
	"github.com/dmehra2102/stock-reservation-engine/pkg/outbox"
)

// OrderRepository persists orders together with the stock changes and outbox events of
// the same transition, in one durable write.
type OrderRepository interface {
	Create(ctx context.Context, o domain.Order, changes []inventory.StockChange, events []outbox.Event) error
	// Transition stores o if the stored status is still from, otherwise it returns
	// domain.ErrStaleOrder and writes nothing.
	Transition(ctx context.Context, o domain.Order, from domain.Status, changes []inventory.StockChange, events []outbox.Event) error
	Get(ctx context.Context, id string) (domain.Order, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Order, error)
	TopSelling(ctx context.Context, limit int) ([]domain.ProductSales, error)
}
