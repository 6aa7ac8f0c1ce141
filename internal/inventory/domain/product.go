package domain

import (
	"fmt"
	"strings"
	"time"
)

type Product struct {
	ID               int64
	Name             string
	Category         string
	StockLevel       int
	ReservedStock    int
	CostPriceCents   int64
	PriceCents       int64
	ReorderThreshold int
	SupplierID       int64
	UpdatedAt        time.Time
}

// Levels is the ledger pair guarded by the product's critical section.
type Levels struct {
	StockLevel    int
	ReservedStock int
}

func (p Product) Levels() Levels {
	return Levels{StockLevel: p.StockLevel, ReservedStock: p.ReservedStock}
}

func (p Product) IsLowStock() bool {
	return p.StockLevel <= p.ReorderThreshold
}

// Validate checks the catalog fields supplied when a product is registered.
func (p Product) Validate() error {
	switch {
	case p.ID <= 0:
		return fmt.Errorf("%w: id must be positive", ErrInvalidProduct)
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case p.PriceCents < 0 || p.CostPriceCents < 0:
		return fmt.Errorf("%w: prices cannot be negative", ErrInvalidProduct)
	case p.ReorderThreshold < 0:
		return fmt.Errorf("%w: reorder threshold cannot be negative", ErrInvalidProduct)
	case p.StockLevel < 0:
		return fmt.Errorf("%w: stock level cannot be negative", ErrInvalidProduct)
	case p.StockLevel > MaxQuantity:
		return fmt.Errorf("%w: stock level cannot exceed %d", ErrInvalidProduct, MaxQuantity)
	}
	return nil
}

// WithCatalog copies catalog fields from src, leaving the ledger counters untouched.
func (p Product) WithCatalog(src Product) Product {
	p.Name = src.Name
	p.Category = src.Category
	p.CostPriceCents = src.CostPriceCents
	p.PriceCents = src.PriceCents
	p.ReorderThreshold = src.ReorderThreshold
	p.SupplierID = src.SupplierID
	return p
}
