// Package address validates and normalizes shipping addresses.
// Implementations can call external verification APIs; BasicValidator
// covers format checks without one.
package address

import "context"

// Validator checks whether an address is usable for shipping. Even when
// the address is rejected, Normalized carries whatever cleanup was
// possible.
type Validator interface {
	Validate(ctx context.Context, addr Address) (*Result, error)
}

// Address is a shipping destination.
type Address struct {
	Line1      string
	City       string
	Region     string
	PostalCode string
	Country    string
}

// Result is the outcome of validation.
type Result struct {
	Valid      bool
	Normalized Address
	Problems   []Problem
}

// Problem points at a single rejected field.
type Problem struct {
	Field   string
	Message string
}
