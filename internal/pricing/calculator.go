// Package pricing computes cart totals and discounts.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativePrice   = errors.New("price must not be negative")
	ErrInvalidDiscount = errors.New("discount percentage must be between 0 and 100")
)

var hundred = decimal.NewFromInt(100)

// Line is a single priced cart line
type Line struct {
	UnitPrice          decimal.Decimal
	Quantity           int
	DiscountPercentage int
}

// Totals is the result of pricing a cart
type Totals struct {
	Total      decimal.Decimal `json:"total"`
	Discount   decimal.Decimal `json:"discount"`
	FinalTotal decimal.Decimal `json:"final_total"`
}

// LineTotal returns the undiscounted amount and the discount for one line.
// Lines with a non-positive quantity count as removed and yield zeros.
func LineTotal(line Line) (amount, discount decimal.Decimal, err error) {
	if line.Quantity <= 0 {
		return decimal.Zero, decimal.Zero, nil
	}

	if line.UnitPrice.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s", ErrNegativePrice, line.UnitPrice)
	}

	if line.DiscountPercentage < 0 || line.DiscountPercentage > 100 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %d", ErrInvalidDiscount, line.DiscountPercentage)
	}

	amount = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))

	if line.DiscountPercentage > 0 {
		discount = amount.Mul(decimal.NewFromInt(int64(line.DiscountPercentage))).Div(hundred)
	}

	return amount, discount, nil
}

// Calculate prices a set of lines. The result does not depend on line order.
func Calculate(lines []Line) (Totals, error) {
	total := decimal.Zero
	discount := decimal.Zero

	for i, line := range lines {
		amount, lineDiscount, err := LineTotal(line)

		if err != nil {
			return Totals{}, fmt.Errorf("line %d: %w", i, err)
		}

		total = total.Add(amount)
		discount = discount.Add(lineDiscount)
	}

	total = total.Round(2)
	discount = discount.Round(2)

	return Totals{
		Total:      total,
		Discount:   discount,
		FinalTotal: total.Sub(discount),
	}, nil
}
