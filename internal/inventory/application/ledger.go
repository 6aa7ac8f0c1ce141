package application

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation-engine/pkg/keylock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Ledger is the only writer of stock counters. Every mutation runs inside the critical
// section of the products it touches.
type Ledger struct {
	log    *slog.Logger
	repo   StockRepository
	locks  *keylock.Locker[int64]
	tracer trace.Tracer
}

func NewLedger(log *slog.Logger, repo StockRepository, lockWait time.Duration) *Ledger {
	return &Ledger{
		log:    log,
		repo:   repo,
		locks:  keylock.New[int64](lockWait),
		tracer: otel.Tracer("inventory/ledger"),
	}
}

// Begin locks ids in ascending order and loads their current state. Every id must exist.
// The caller must Close the returned Txn.
func (l *Ledger) Begin(ctx context.Context, ids ...int64) (*Txn, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.begin", trace.WithAttributes(attribute.Int("products", len(ids))))
	defer span.End()

	unlock, err := l.locks.Acquire(ctx, ids...)
	if err != nil {
		if errors.Is(err, keylock.ErrTimeout) {
			return nil, fmt.Errorf("%w: %w", domain.ErrBusy, err)
		}
		return nil, err
	}

	products, err := l.repo.Products(ctx, ids)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("load products: %w", err)
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	for _, id := range sorted {
		if _, ok := products[id]; !ok {
			unlock()
			return nil, &domain.UnknownProductError{ProductID: id}
		}
	}

	return &Txn{ledger: l, products: products, unlock: unlock}, nil
}

func (l *Ledger) Reserve(ctx context.Context, productID int64, qty int) (domain.Product, error) {
	return l.single(ctx, productID, func(t *Txn) error { return t.Reserve(productID, qty) })
}

func (l *Ledger) Release(ctx context.Context, productID int64, qty int) (domain.Product, error) {
	return l.single(ctx, productID, func(t *Txn) error { return t.Release(productID, qty) })
}

func (l *Ledger) Finalize(ctx context.Context, productID int64, qty int) (domain.Product, error) {
	return l.single(ctx, productID, func(t *Txn) error { return t.Finalize(productID, qty) })
}

// Receive books a supplier batch into available stock.
func (l *Ledger) Receive(ctx context.Context, r domain.Receipt) (domain.Product, error) {
	p, err := l.single(ctx, r.ProductID, func(t *Txn) error { return t.Receive(r.ProductID, r.Quantity, r.BatchRef) })
	if err != nil {
		return domain.Product{}, err
	}
	l.log.Info("stock received", "product_id", p.ID, "quantity", r.Quantity, "batch", r.BatchRef, "stock_level", p.StockLevel)
	return p, nil
}

// RegisterProduct creates a product with its initial stock level, or updates the catalog
// fields of an existing one.
func (l *Ledger) RegisterProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	unlock, err := l.locks.Acquire(ctx, p.ID)
	if err != nil {
		if errors.Is(err, keylock.ErrTimeout) {
			return domain.Product{}, fmt.Errorf("%w: %w", domain.ErrBusy, err)
		}
		return domain.Product{}, err
	}
	defer unlock()

	existing, err := l.repo.Products(ctx, []int64{p.ID})
	if err != nil {
		return domain.Product{}, fmt.Errorf("load product: %w", err)
	}
	if cur, ok := existing[p.ID]; ok {
		p = cur.WithCatalog(p)
	} else {
		p.ReservedStock = 0
	}
	saved, err := l.repo.SaveProduct(ctx, p)
	if err != nil {
		return domain.Product{}, fmt.Errorf("save product: %w", err)
	}
	l.log.Info("product registered", "product_id", saved.ID, "stock_level", saved.StockLevel)
	return saved, nil
}

func (l *Ledger) Get(ctx context.Context, productID int64) (domain.Product, error) {
	products, err := l.repo.Products(ctx, []int64{productID})
	if err != nil {
		return domain.Product{}, err
	}
	p, ok := products[productID]
	if !ok {
		return domain.Product{}, &domain.UnknownProductError{ProductID: productID}
	}
	return p, nil
}

func (l *Ledger) List(ctx context.Context) ([]domain.Product, error) {
	products, err := l.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(products, func(a, b domain.Product) int { return cmp.Compare(a.ID, b.ID) })
	return products, nil
}

// LowStock lists products whose available level is at or below their reorder threshold.
func (l *Ledger) LowStock(ctx context.Context) ([]domain.Product, error) {
	products, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(products, func(p domain.Product) bool { return !p.IsLowStock() }), nil
}

// Movements returns the audit trail of a product, newest first.
func (l *Ledger) Movements(ctx context.Context, productID int64, limit int) ([]domain.Movement, error) {
	if _, err := l.Get(ctx, productID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return l.repo.Movements(ctx, productID, limit)
}

// Available reports the available level of a product and whether qty could be reserved
// right now. The answer is advisory; only Reserve decides.
func (l *Ledger) Available(ctx context.Context, productID int64, qty int) (int, bool, error) {
	p, err := l.Get(ctx, productID)
	if err != nil {
		return 0, false, err
	}
	return p.StockLevel, qty > 0 && p.StockLevel >= qty, nil
}

func (l *Ledger) single(ctx context.Context, productID int64, op func(*Txn) error) (domain.Product, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.single", trace.WithAttributes(attribute.String("product_id", strconv.FormatInt(productID, 10))))
	defer span.End()

	t, err := l.Begin(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	defer t.Close()

	if err := op(t); err != nil {
		var iv *domain.InvariantViolationError
		if errors.As(err, &iv) {
			l.log.Error("stock invariant violated", "product_id", productID, "err", err)
		}
		return domain.Product{}, err
	}
	if err := t.Commit(ctx); err != nil {
		return domain.Product{}, err
	}
	p, _ := t.Product(productID)
	return p, nil
}

