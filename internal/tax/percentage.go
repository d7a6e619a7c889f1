package tax

import (
	"context"

	"github.com/shopspring/decimal"
)

// PercentageCalculator applies a single flat rate to the taxable
// amount. Suitable for single-jurisdiction stores where one rate
// covers every destination.
type PercentageCalculator struct {
	rate decimal.Decimal
}

var _ Calculator = (*PercentageCalculator)(nil)

// NewPercentageCalculator creates a calculator with the given rate
// expressed as a fraction, e.g. 0.0875 for 8.75%.
func NewPercentageCalculator(rate float64) (*PercentageCalculator, error) {
	if rate < 0 || rate > 1 {
		return nil, ErrInvalidRate
	}
	return &PercentageCalculator{rate: decimal.NewFromFloat(rate)}, nil
}

func (c *PercentageCalculator) CalculateTax(ctx context.Context, params Params) (*Result, error) {
	if params.TaxableCents < 0 {
		return nil, ErrNegativeAmount
	}

	tax := decimal.NewFromInt(params.TaxableCents).Mul(c.rate).Round(0)

	rate, _ := c.rate.Float64()
	return &Result{
		TaxCents: tax.IntPart(),
		Rate:     rate,
	}, nil
}
