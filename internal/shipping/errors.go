package shipping

import "errors"

var (
	// ErrNoItems is returned when a quote is requested for an empty order.
	ErrNoItems = errors.New("cannot quote shipping for an order with no items")

	// ErrInvalidCost is returned when a provider is configured with a
	// negative cost.
	ErrInvalidCost = errors.New("shipping cost cannot be negative")
)
