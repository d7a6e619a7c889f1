package handler

import (
	"github.com/go-playground/validator/v10"

	"github.com/dvrhoads/njord/internal/domain"
)

// RequestValidator adapts go-playground/validator to echo's Validator
// interface. Struct tag failures surface as EINVALID.
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator creates the validator echo binds to.
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New()}
}

func (v *RequestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return domain.WrapError(err, domain.EINVALID, "", "Request validation failed")
	}
	return nil
}
