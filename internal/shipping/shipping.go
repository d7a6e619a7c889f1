package shipping

import "context"

// Provider quotes a shipping cost for an order at checkout.
type Provider interface {
	Quote(ctx context.Context, params QuoteParams) (*Quote, error)
}

// QuoteParams describes the order being shipped. SubtotalCents is the
// discounted merchandise subtotal, used by providers that waive
// shipping above a threshold.
type QuoteParams struct {
	SubtotalCents int64
	ItemCount     int32
	Country       string
	Region        string
	PostalCode    string
}

// Quote is a priced shipping option.
type Quote struct {
	ServiceName string
	CostCents   int64
	DaysMin     int
	DaysMax     int
}
