package application

import (
	"context"

	"github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation-engine/pkg/outbox"
)

type StockRepository interface {
	// Products returns the requested products keyed by id; missing ids are simply absent.
	Products(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	// SaveProduct inserts a product or updates its catalog fields. Stock counters of an
	// existing row are left alone.
	SaveProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	// SaveStock persists changes, their movement rows and events in one durable write.
	// Each change is applied only if the stored levels still equal change.Before, otherwise
	// domain.ErrConcurrentUpdate is returned and nothing is written.
	SaveStock(ctx context.Context, changes []domain.StockChange, events []outbox.Event) error
	// Movements returns the most recent movements of a product, newest first.
	Movements(ctx context.Context, productID int64, limit int) ([]domain.Movement, error)
}
