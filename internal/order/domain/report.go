package domain

// ProductSales aggregates completed order lines for one product.
type ProductSales struct {
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	Quantity     int    `json:"quantity_sold"`
	RevenueCents int64  `json:"revenue_cents"`
}

type ListFilter struct {
	CustomerID string
	Status     Status
}
