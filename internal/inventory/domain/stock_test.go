package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(stock, reserved int) Product {
	return Product{ID: 7, Name: "Widget", StockLevel: stock, ReservedStock: reserved, PriceCents: 250, ReorderThreshold: 3}
}

func TestReserveMovesAvailableIntoReserved(t *testing.T) {
	p, change, err := product(10, 0).Reserve(4)
	require.NoError(t, err)
	assert.Equal(t, Levels{StockLevel: 6, ReservedStock: 4}, p.Levels())
	assert.Equal(t, Levels{StockLevel: 10, ReservedStock: 0}, change.Before)
	assert.Equal(t, p.Levels(), change.After)
	assert.Equal(t, MovementReserve, change.Kind)
}

func TestReserveInsufficient(t *testing.T) {
	orig := product(2, 5)
	p, _, err := orig.Reserve(3)

	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, InsufficientStockError{ProductID: 7, Requested: 3, Available: 2}, *ise)
	assert.Equal(t, orig, p)
}

func TestReserveThenReleaseIsNoop(t *testing.T) {
	orig := product(10, 1)
	p, _, err := orig.Reserve(4)
	require.NoError(t, err)
	p, _, err = p.Release(4)
	require.NoError(t, err)
	assert.Equal(t, orig.Levels(), p.Levels())
}

func TestFinalizeKeepsAvailableLevel(t *testing.T) {
	p, _, err := product(10, 0).Reserve(4)
	require.NoError(t, err)
	p, change, err := p.Finalize(4)
	require.NoError(t, err)
	assert.Equal(t, Levels{StockLevel: 6, ReservedStock: 0}, p.Levels())
	assert.Equal(t, MovementFinalize, change.Kind)
}

func TestReleaseAndFinalizeGuardReservedUnderflow(t *testing.T) {
	for name, op := range map[string]func(Product, int) (Product, StockChange, error){
		"release":  Product.Release,
		"finalize": Product.Finalize,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := op(product(10, 1), 2)
			var iv *InvariantViolationError
			require.ErrorAs(t, err, &iv)
			assert.Equal(t, 1, iv.Reserved)
			assert.Equal(t, 2, iv.Quantity)
		})
	}
}

func TestNonPositiveQuantity(t *testing.T) {
	p := product(10, 10)
	for _, qty := range []int{0, -1} {
		_, _, err := p.Reserve(qty)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		_, _, err = p.Release(qty)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		_, _, err = p.Finalize(qty)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		_, _, err = p.Receive(qty, "B-1")
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	}
}

func TestReceive(t *testing.T) {
	p, change, err := product(1, 2).Receive(5, "B-42")
	require.NoError(t, err)
	assert.Equal(t, Levels{StockLevel: 6, ReservedStock: 2}, p.Levels())
	assert.Equal(t, "B-42", change.Reference)
}

func TestReceiveRejectsCounterOverflow(t *testing.T) {
	tests := []struct {
		name     string
		stock    int
		reserved int
		qty      int
		err      error
	}{
		{"fills to the cap", MaxQuantity - 10, 5, 5, nil},
		{"one past the cap", MaxQuantity - 10, 5, 6, ErrQuantityTooLarge},
		{"reserved units count", 0, MaxQuantity, 1, ErrQuantityTooLarge},
		{"huge receipt", 1, 0, int(^uint(0) >> 1), ErrQuantityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := product(tt.stock, tt.reserved)
			p, _, err := orig.Receive(tt.qty, "B-1")
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				assert.Equal(t, orig, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, MaxQuantity, p.StockLevel+p.ReservedStock)
		})
	}
}

func TestCrossedBelow(t *testing.T) {
	tests := []struct {
		name   string
		before int
		after  int
		want   bool
	}{
		{"crosses", 5, 3, true},
		{"already low", 3, 1, false},
		{"stays above", 10, 4, false},
		{"rises", 2, 8, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := StockChange{Before: Levels{StockLevel: tt.before}, After: Levels{StockLevel: tt.after}}
			assert.Equal(t, tt.want, c.CrossedBelow(3))
		})
	}
}

func TestValidateAndCatalog(t *testing.T) {
	assert.NoError(t, product(0, 0).Validate())
	assert.ErrorIs(t, Product{ID: 1}.Validate(), ErrInvalidProduct)
	assert.ErrorIs(t, Product{ID: 1, Name: "x", PriceCents: -1}.Validate(), ErrInvalidProduct)
	assert.ErrorIs(t, Product{Name: "x"}.Validate(), ErrInvalidProduct)

	updated := product(9, 4).WithCatalog(Product{Name: "Gadget", PriceCents: 999, StockLevel: 100, ReservedStock: 100})
	assert.Equal(t, "Gadget", updated.Name)
	assert.Equal(t, int64(999), updated.PriceCents)
	assert.Equal(t, Levels{StockLevel: 9, ReservedStock: 4}, updated.Levels())
}
