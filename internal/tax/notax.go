package tax

import "context"

// NoTaxCalculator always returns zero tax. Used in development mode
// and for stores that handle tax outside the checkout flow.
type NoTaxCalculator struct{}

var _ Calculator = (*NoTaxCalculator)(nil)

func NewNoTaxCalculator() *NoTaxCalculator {
	return &NoTaxCalculator{}
}

func (c *NoTaxCalculator) CalculateTax(ctx context.Context, params Params) (*Result, error) {
	if params.TaxableCents < 0 {
		return nil, ErrNegativeAmount
	}
	return &Result{TaxCents: 0, Rate: 0}, nil
}
