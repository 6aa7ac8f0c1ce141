package domain

import "time"

type Order struct {
	ID            string
	CustomerID    string
	Status        Status
	Items         []OrderItem
	TotalCents    int64
	ReorderedFrom string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ApprovedAt    *time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
}

// OrderItem carries value snapshots of the product name and price taken at reservation
// time; later catalog changes never alter an existing order.
type OrderItem struct {
	ProductID      int64
	ProductName    string
	Quantity       int
	UnitPriceCents int64
}

func (i OrderItem) SubtotalCents() int64 {
	return int64(i.Quantity) * i.UnitPriceCents
}

// NewOrder returns a reserved order with its total frozen from items.
func NewOrder(id, customerID string, items []OrderItem, now time.Time) Order {
	var total int64
	for _, item := range items {
		total += item.SubtotalCents()
	}
	return Order{
		ID:         id,
		CustomerID: customerID,
		Status:     StatusReserved,
		Items:      items,
		TotalCents: total,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Apply runs e against the order and returns the resulting order. The receiver is not
// modified, so a rejected event leaves the caller's copy intact.
func (o Order) Apply(e Event, now time.Time) (Order, error) {
	next, err := o.Status.Next(e)
	if err != nil {
		return o, err
	}
	o.Status = next
	o.UpdatedAt = now
	switch e {
	case EventApprove:
		o.ApprovedAt = &now
	case EventComplete:
		o.CompletedAt = &now
	case EventCancel:
		o.CancelledAt = &now
	}
	return o, nil
}

func (o Order) ProductIDs() []int64 {
	ids := make([]int64, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
