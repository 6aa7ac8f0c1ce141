package domain

import "time"

const (
	AggregateOrder = "order"

	EventOrderReserved  = "OrderReserved"
	EventOrderApproved  = "OrderApproved"
	EventOrderCompleted = "OrderCompleted"
	EventOrderCancelled = "OrderCancelled"
)

type EventItem struct {
	ProductID      int64 `json:"product_id"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents"`
}

// OrderEvent is the payload of every order lifecycle event.
type OrderEvent struct {
	OrderID       string      `json:"order_id"`
	CustomerID    string      `json:"customer_id"`
	Status        Status      `json:"status"`
	TotalCents    int64       `json:"total_cents"`
	Items         []EventItem `json:"items"`
	ReorderedFrom string      `json:"reordered_from,omitempty"`
	Actor         string      `json:"actor,omitempty"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

// EventType names the event emitted when an order enters s.
func EventType(s Status) string {
	switch s {
	case StatusApproved:
		return EventOrderApproved
	case StatusCompleted:
		return EventOrderCompleted
	case StatusCancelled:
		return EventOrderCancelled
	default:
		return EventOrderReserved
	}
}

func NewOrderEvent(o Order, actor string) OrderEvent {
	items := make([]EventItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, EventItem{ProductID: item.ProductID, Quantity: item.Quantity, UnitPriceCents: item.UnitPriceCents})
	}
	return OrderEvent{
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		Status:        o.Status,
		TotalCents:    o.TotalCents,
		Items:         items,
		ReorderedFrom: o.ReorderedFrom,
		Actor:         actor,
		OccurredAt:    o.UpdatedAt,
	}
}
