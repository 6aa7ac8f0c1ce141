package domain

// Cart is a finalized cart submission.
type Cart struct {
	CustomerID string     `json:"customer_id"`
	Lines      []CartLine `json:"lines"`
}

type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}
