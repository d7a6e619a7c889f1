package tax

import "errors"

var (
	// ErrInvalidRate is returned when a calculator is configured with a
	// rate outside [0, 1].
	ErrInvalidRate = errors.New("tax rate must be between 0 and 1")

	// ErrNegativeAmount is returned when the taxable amount is negative.
	ErrNegativeAmount = errors.New("taxable amount cannot be negative")
)
