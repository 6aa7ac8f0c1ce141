package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	inventoryapp "github.com/dmehra2102/stock-reservation-engine/internal/inventory/application"
	inventory "github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation-engine/internal/order/domain"
	"github.com/dmehra2102/stock-reservation-engine/pkg/identity"
	"github.com/dmehra2102/stock-reservation-engine/pkg/keylock"
	"github.com/dmehra2102/stock-reservation-engine/pkg/outbox"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Service owns the order state machine and drives the stock ledger on each transition.
type Service struct {
	log    *slog.Logger
	repo   OrderRepository
	ledger *inventoryapp.Ledger
	locks  *keylock.Locker[string]
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDGenerator(newID func() string) Option { return func(s *Service) { s.newID = newID } }

func NewService(log *slog.Logger, repo OrderRepository, ledger *inventoryapp.Ledger, lockWait time.Duration, opts ...Option) *Service {
	s := &Service{
		log:    log,
		repo:   repo,
		ledger: ledger,
		locks:  keylock.New[string](lockWait),
		tracer: otel.Tracer("order/service"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder reserves stock for the cart and records a reserved order owned by the actor.
func (s *Service) PlaceOrder(ctx context.Context, actor identity.Actor, cart domain.Cart) (domain.Order, error) {
	cart.CustomerID = actor.ID
	res, err := BuildReservation(cart)
	if err != nil {
		return domain.Order{}, err
	}
	return s.reserve(ctx, res, "", actor.ID)
}

// Cancel releases the reservation of a reserved order. Owners and managers may cancel.
func (s *Service) Cancel(ctx context.Context, actor identity.Actor, id string) (domain.Order, error) {
	return s.transition(ctx, actor, id, ownerOrManager(actor), domain.EventCancel)
}

// Reorder places a new order with the lines of a completed one, against current stock
// and current prices. The source order is never modified.
func (s *Service) Reorder(ctx context.Context, actor identity.Actor, id string) (domain.Order, error) {
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if src.CustomerID != actor.ID {
		return domain.Order{}, identity.ErrForbidden
	}
	if _, err := src.Status.Next(domain.EventReorder); err != nil {
		return domain.Order{}, err
	}

	cart := domain.Cart{CustomerID: src.CustomerID}
	for _, item := range src.Items {
		cart.Lines = append(cart.Lines, domain.CartLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	res, err := BuildReservation(cart)
	if err != nil {
		return domain.Order{}, err
	}
	o, err := s.reserve(ctx, res, src.ID, actor.ID)
	if err != nil {
		s.log.Info("reorder rejected", "source_order_id", src.ID, "err", err)
		return domain.Order{}, err
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, actor identity.Actor, id string) (domain.Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.CanAccess(o.CustomerID) {
		return domain.Order{}, identity.ErrForbidden
	}
	return o, nil
}

// List returns every order for managers and the actor's own orders for customers.
func (s *Service) List(ctx context.Context, actor identity.Actor, status domain.Status) ([]domain.Order, error) {
	filter := domain.ListFilter{Status: status}
	if !actor.IsManager() {
		filter.CustomerID = actor.ID
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) TopSelling(ctx context.Context, actor identity.Actor, limit int) ([]domain.ProductSales, error) {
	if err := actor.RequireManager(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	return s.repo.TopSelling(ctx, limit)
}

func ownerOrManager(actor identity.Actor) func(domain.Order) error {
	return func(o domain.Order) error {
		if !actor.CanAccess(o.CustomerID) {
			return identity.ErrForbidden
		}
		return nil
	}
}

// transition applies events to the order under its critical section and persists the
// result with the implied stock effect as one write. Any rejected event aborts with no
// side effect.
func (s *Service) transition(ctx context.Context, actor identity.Actor, id string, authorize func(domain.Order) error, events ...domain.Event) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.transition", trace.WithAttributes(attribute.String("order_id", id)))
	defer span.End()

	unlock, err := s.locks.Acquire(ctx, id)
	if err != nil {
		if errors.Is(err, keylock.ErrTimeout) {
			return domain.Order{}, fmt.Errorf("%w: %w", inventory.ErrBusy, err)
		}
		return domain.Order{}, err
	}
	defer unlock()

	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if authorize != nil {
		if err := authorize(cur); err != nil {
			return domain.Order{}, err
		}
	}

	now := s.now()
	next := cur
	var outboxEvents []outbox.Event
	for _, e := range events {
		if next, err = next.Apply(e, now); err != nil {
			return domain.Order{}, err
		}
		ev, err := orderEvent(ctx, next, actor.ID)
		if err != nil {
			return domain.Order{}, err
		}
		outboxEvents = append(outboxEvents, ev)
	}

	t, err := s.stockEffect(ctx, next)
	if err != nil {
		if isInvariantViolation(err) {
			s.log.Error("stock invariant violated during transition", "order_id", id, "status", next.Status, "err", err)
		}
		return domain.Order{}, err
	}
	var changes []inventory.StockChange
	if t != nil {
		defer t.Close()
		stockEvents, err := t.Events(ctx)
		if err != nil {
			return domain.Order{}, err
		}
		changes = t.Changes()
		outboxEvents = append(stockEvents, outboxEvents...)
	}

	if err := s.repo.Transition(ctx, next, cur.Status, changes, outboxEvents); err != nil {
		return domain.Order{}, fmt.Errorf("transition order %s: %w", id, err)
	}
	s.log.Info("order transitioned", "order_id", id, "from", cur.Status, "to", next.Status, "actor", actor.ID)
	return next, nil
}

// stockEffect stages the ledger mutation implied by entering o.Status: release for
// cancelled, finalize for completed. It returns nil when there is none; otherwise the
// caller owns the returned Txn and must Close it after the durable write.
func (s *Service) stockEffect(ctx context.Context, o domain.Order) (*inventoryapp.Txn, error) {
	var op func(t *inventoryapp.Txn, id int64, qty int) error
	switch o.Status {
	case domain.StatusCancelled:
		op = (*inventoryapp.Txn).Release
	case domain.StatusCompleted:
		op = (*inventoryapp.Txn).Finalize
	default:
		return nil, nil
	}

	t, err := s.ledger.Begin(ctx, o.ProductIDs()...)
	if err != nil {
		return nil, err
	}
	for _, item := range o.Items {
		if err := op(t, item.ProductID, item.Quantity); err != nil {
			t.Close()
			return nil, err
		}
	}
	t.Reference(o.ID)
	return t, nil
}
