package shipping

import "context"

// FlatRateProvider charges a fixed cost per order, waived when the
// discounted subtotal meets the free shipping threshold. A threshold
// of zero disables free shipping.
type FlatRateProvider struct {
	serviceName   string
	costCents     int64
	freeOverCents int64
	daysMin       int
	daysMax       int
}

var _ Provider = (*FlatRateProvider)(nil)

// NewFlatRateProvider creates a flat rate provider. freeOverCents of
// zero means shipping is always charged.
func NewFlatRateProvider(costCents, freeOverCents int64) (*FlatRateProvider, error) {
	if costCents < 0 || freeOverCents < 0 {
		return nil, ErrInvalidCost
	}
	return &FlatRateProvider{
		serviceName:   "Standard Shipping",
		costCents:     costCents,
		freeOverCents: freeOverCents,
		daysMin:       3,
		daysMax:       7,
	}, nil
}

func (p *FlatRateProvider) Quote(ctx context.Context, params QuoteParams) (*Quote, error) {
	if params.ItemCount <= 0 {
		return nil, ErrNoItems
	}

	cost := p.costCents
	if p.freeOverCents > 0 && params.SubtotalCents >= p.freeOverCents {
		cost = 0
	}

	return &Quote{
		ServiceName: p.serviceName,
		CostCents:   cost,
		DaysMin:     p.daysMin,
		DaysMax:     p.daysMax,
	}, nil
}
