package tax

import "context"

// Calculator computes sales tax for an order at checkout. Tax is
// calculated on the discounted subtotal; shipping is not taxed.
type Calculator interface {
	CalculateTax(ctx context.Context, params Params) (*Result, error)
}

// Params carries the amounts a calculator needs. TaxableCents is the
// order subtotal after coupon discounts have been applied.
type Params struct {
	TaxableCents  int64
	ShippingCents int64
	Country       string
	Region        string
	PostalCode    string
}

// Result is the outcome of a tax calculation.
type Result struct {
	TaxCents int64
	Rate     float64
}
