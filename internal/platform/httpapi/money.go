package httpapi

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Money renders cents as a fixed two-decimal amount.
func Money(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// ParseMoney parses an amount like "12.5" into cents. Sub-cent precision is rejected.
func ParseMoney(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q: %w", ErrBadRequest, s, err)
	}
	cents := d.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount %q has more than two decimals", ErrBadRequest, s)
	}
	if cents.IsNegative() {
		return 0, fmt.Errorf("%w: amount %q is negative", ErrBadRequest, s)
	}
	return cents.IntPart(), nil
}
