package application

import (
	"context"

	"github.com/dmehra2102/stock-reservation-engine/internal/order/domain"
	"github.com/dmehra2102/stock-reservation-engine/pkg/identity"
)

// Gateway is the manager-only moderation surface over the order lifecycle.
type Gateway struct {
	svc *Service
}

func NewGateway(svc *Service) *Gateway {
	return &Gateway{svc: svc}
}

func (g *Gateway) Approve(ctx context.Context, actor identity.Actor, id string) (domain.Order, error) {
	if err := actor.RequireManager(); err != nil {
		return domain.Order{}, err
	}
	return g.svc.transition(ctx, actor, id, nil, domain.EventApprove)
}

// Complete finalizes the reserved stock of an approved order.
func (g *Gateway) Complete(ctx context.Context, actor identity.Actor, id string) (domain.Order, error) {
	if err := actor.RequireManager(); err != nil {
		return domain.Order{}, err
	}
	return g.svc.transition(ctx, actor, id, nil, domain.EventComplete)
}

// ApproveAndComplete takes a reserved order straight to completed in one write. Both
// timestamps are stamped and the stock is finalized once.
func (g *Gateway) ApproveAndComplete(ctx context.Context, actor identity.Actor, id string) (domain.Order, error) {
	if err := actor.RequireManager(); err != nil {
		return domain.Order{}, err
	}
	return g.svc.transition(ctx, actor, id, nil, domain.EventApprove, domain.EventComplete)
}

// Reject cancels a reserved order on the manager's behalf.
func (g *Gateway) Reject(ctx context.Context, actor identity.Actor, id string) (domain.Order, error) {
	if err := actor.RequireManager(); err != nil {
		return domain.Order{}, err
	}
	return g.svc.transition(ctx, actor, id, nil, domain.EventCancel)
}

// ListReserved is the moderation queue.
func (g *Gateway) ListReserved(ctx context.Context, actor identity.Actor) ([]domain.Order, error) {
	if err := actor.RequireManager(); err != nil {
		return nil, err
	}
	return g.svc.List(ctx, actor, domain.StatusReserved)
}
