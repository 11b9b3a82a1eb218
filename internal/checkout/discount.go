package checkout

import (
	"context"

	"github.com/shopspring/decimal"
)

// DiscountStrategy computes the coupon discount applied to an order's
// subtotal. Implementations must never return a negative amount or one
// larger than the subtotal.
type DiscountStrategy interface {
	Discount(ctx context.Context, subtotal decimal.Decimal) decimal.Decimal
}

// FixedDiscount subtracts a flat amount, capped at the subtotal. The zero
// value applies no discount.
type FixedDiscount struct {
	Amount decimal.Decimal
}

func (d FixedDiscount) Discount(_ context.Context, subtotal decimal.Decimal) decimal.Decimal {
	if d.Amount.IsNegative() || subtotal.IsZero() {
		return decimal.Zero
	}
	if d.Amount.GreaterThan(subtotal) {
		return subtotal
	}
	return d.Amount
}

// NoDiscount applies nothing; used when the coupon program is off.
type NoDiscount struct{}

func (NoDiscount) Discount(context.Context, decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}
