// Package memory is an in-process store implementing the inventory, order and outbox
// ports. It backs unit tests and STORE_DRIVER=memory; nothing survives a restart.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	inventory "github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	order "github.com/dmehra2102/stock-reservation-engine/internal/order/domain"
	"github.com/dmehra2102/stock-reservation-engine/pkg/outbox"
)

const maxOutboxRetries = 5

type Store struct {
	mu        sync.Mutex
	now       func() time.Time
	products  map[int64]inventory.Product
	orders    map[string]order.Order
	orderSeq  []string
	movements []inventory.Movement
	events    []outbox.Event
	leases    map[int64]time.Time
}

func NewStore() *Store {
	return &Store{
		now:      func() time.Time { return time.Now().UTC() },
		products: make(map[int64]inventory.Product),
		orders:   make(map[string]order.Order),
		leases:   make(map[int64]time.Time),
	}
}

// Seed stores products as they are, counters included.
func (s *Store) Seed(products ...inventory.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.products[p.ID] = p
	}
}

func (s *Store) Products(_ context.Context, ids []int64) (map[int64]inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]inventory.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) ListProducts(_ context.Context) ([]inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) SaveProduct(_ context.Context, p inventory.Product) (inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.products[p.ID]; ok {
		p = cur.WithCatalog(p)
	}
	p.UpdatedAt = s.now()
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) SaveStock(_ context.Context, changes []inventory.StockChange, events []outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyLocked(changes); err != nil {
		return err
	}
	s.appendEventsLocked(events)
	return nil
}

func (s *Store) Movements(_ context.Context, productID int64, limit int) ([]inventory.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.Movement
	for i := len(s.movements) - 1; i >= 0 && len(out) < limit; i-- {
		if s.movements[i].ProductID == productID {
			out = append(out, s.movements[i])
		}
	}
	return out, nil
}

func (s *Store) Create(_ context.Context, o order.Order, changes []inventory.StockChange, events []outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	if err := s.applyLocked(changes); err != nil {
		return err
	}
	s.orders[o.ID] = cloneOrder(o)
	s.orderSeq = append(s.orderSeq, o.ID)
	s.appendEventsLocked(events)
	return nil
}

func (s *Store) Transition(_ context.Context, o order.Order, from order.Status, changes []inventory.StockChange, events []outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok {
		return order.ErrOrderNotFound
	}
	if cur.Status != from {
		return order.ErrStaleOrder
	}
	if err := s.applyLocked(changes); err != nil {
		return err
	}
	s.orders[o.ID] = cloneOrder(o)
	s.appendEventsLocked(events)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, order.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

// List returns matching orders oldest first.
func (s *Store) List(_ context.Context, filter order.ListFilter) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]order.Order, 0)
	for _, id := range s.orderSeq {
		o := s.orders[id]
		if filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	return out, nil
}

func (s *Store) TopSelling(_ context.Context, limit int) ([]order.ProductSales, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byProduct := make(map[int64]*order.ProductSales)
	for _, o := range s.orders {
		if o.Status != order.StatusCompleted {
			continue
		}
		for _, item := range o.Items {
			ps, ok := byProduct[item.ProductID]
			if !ok {
				ps = &order.ProductSales{ProductID: item.ProductID}
				byProduct[item.ProductID] = ps
			}
			ps.ProductName = s.products[item.ProductID].Name
			ps.Quantity += item.Quantity
			ps.RevenueCents += item.SubtotalCents()
		}
	}
	out := make([]order.ProductSales, 0, len(byProduct))
	for _, ps := range byProduct {
		out = append(out, *ps)
	}
	slices.SortFunc(out, func(a, b order.ProductSales) int {
		if c := cmp.Compare(b.Quantity, a.Quantity); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) LockBatch(_ context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var out []outbox.Event
	for i := range s.events {
		if len(out) == batchSize {
			break
		}
		e := &s.events[i]
		claimable := e.Status == outbox.StatusPending ||
			(e.Status == outbox.StatusInProgress && now.After(s.leases[e.ID])) ||
			(e.Status == outbox.StatusFailed && e.RetryCount < maxOutboxRetries)
		if !claimable {
			continue
		}
		e.Status = outbox.StatusInProgress
		e.RelayID = relayID
		s.leases[e.ID] = now.Add(lease)
		out = append(out, *e)
	}
	return out, nil
}

func (s *Store) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if e := s.eventLocked(id); e != nil {
			e.Status = outbox.StatusSent
			delete(s.leases, id)
		}
	}
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.eventLocked(id); e != nil {
		e.Status = outbox.StatusFailed
		e.RetryCount++
		e.LastError = &errMsg
		delete(s.leases, id)
	}
	return nil
}

// Events returns a copy of every outbox row.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// applyLocked checks every change against the current levels before writing any of them.
// Changes to the same product must chain: each Before equals the previous After.
func (s *Store) applyLocked(changes []inventory.StockChange) error {
	staged := make(map[int64]inventory.Product, len(changes))
	for _, c := range changes {
		p, ok := staged[c.ProductID]
		if !ok {
			if p, ok = s.products[c.ProductID]; !ok {
				return &inventory.UnknownProductError{ProductID: c.ProductID}
			}
		}
		if p.Levels() != c.Before {
			return fmt.Errorf("product %d: %w", c.ProductID, inventory.ErrConcurrentUpdate)
		}
		if c.After.StockLevel < 0 || c.After.ReservedStock < 0 {
			return &inventory.InvariantViolationError{ProductID: c.ProductID, Op: c.Kind, Reserved: p.ReservedStock, Quantity: c.Quantity}
		}
		p.StockLevel = c.After.StockLevel
		p.ReservedStock = c.After.ReservedStock
		staged[c.ProductID] = p
	}

	now := s.now()
	for id, p := range staged {
		p.UpdatedAt = now
		s.products[id] = p
	}
	for _, c := range changes {
		s.movements = append(s.movements, inventory.Movement{
			ID:            int64(len(s.movements) + 1),
			ProductID:     c.ProductID,
			Kind:          c.Kind,
			Quantity:      c.Quantity,
			StockLevel:    c.After.StockLevel,
			ReservedStock: c.After.ReservedStock,
			Reference:     c.Reference,
			CreatedAt:     now,
		})
	}
	return nil
}

func (s *Store) appendEventsLocked(events []outbox.Event) {
	now := s.now()
	for _, e := range events {
		e.ID = int64(len(s.events) + 1)
		e.Status = outbox.StatusPending
		e.CreatedAt = now
		s.events = append(s.events, e)
	}
}

func (s *Store) eventLocked(id int64) *outbox.Event {
	if id < 1 || id > int64(len(s.events)) {
		return nil
	}
	return &s.events[id-1]
}

func cloneOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	return o
}
