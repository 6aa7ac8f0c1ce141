package domain

const (
	AggregateProduct = "product"

	EventStockReceived    = "StockReceived"
	EventLowStockDetected = "LowStockDetected"
)

type StockReceived struct {
	ProductID  int64  `json:"product_id"`
	Quantity   int    `json:"quantity"`
	Reference  string `json:"reference,omitempty"`
	StockLevel int    `json:"stock_level"`
}

type LowStockDetected struct {
	ProductID        int64  `json:"product_id"`
	Name             string `json:"name"`
	StockLevel       int    `json:"stock_level"`
	ReservedStock    int    `json:"reserved_stock"`
	ReorderThreshold int    `json:"reorder_threshold"`
	SupplierID       int64  `json:"supplier_id,omitempty"`
}

// Receipt is a supplier batch arriving at the warehouse.
type Receipt struct {
	ProductID  int64  `json:"product_id"`
	Quantity   int    `json:"quantity"`
	BatchRef   string `json:"batch_number"`
	SupplierID int64  `json:"supplier_id,omitempty"`
}
