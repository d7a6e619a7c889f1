package address

import (
	"context"
	"regexp"
	"strings"
)

var postalFormats = map[string]*regexp.Regexp{
	"US": regexp.MustCompile(`^\d{5}(-\d{4})?$`),
	"CA": regexp.MustCompile(`^[A-Z]\d[A-Z] ?\d[A-Z]\d$`),
	"GB": regexp.MustCompile(`^[A-Z]{1,2}\d[A-Z\d]? ?\d[A-Z]{2}$`),
}

// BasicValidator performs format validation without an external API.
// It requires a street line and, when both a country and postal code
// are present, checks the postal code against the country's format.
type BasicValidator struct{}

var _ Validator = (*BasicValidator)(nil)

// NewBasicValidator creates a basic address validator.
func NewBasicValidator() *BasicValidator {
	return &BasicValidator{}
}

func (v *BasicValidator) Validate(ctx context.Context, addr Address) (*Result, error) {
	normalized := Address{
		Line1:      strings.TrimSpace(addr.Line1),
		City:       strings.TrimSpace(addr.City),
		Region:     strings.ToUpper(strings.TrimSpace(addr.Region)),
		PostalCode: strings.ToUpper(strings.TrimSpace(addr.PostalCode)),
		Country:    strings.ToUpper(strings.TrimSpace(addr.Country)),
	}

	var problems []Problem
	if normalized.Line1 == "" {
		problems = append(problems, Problem{Field: "line1", Message: "street address is required"})
	}
	if normalized.Country != "" && len(normalized.Country) != 2 {
		problems = append(problems, Problem{Field: "country", Message: "country must be a two-letter ISO code"})
	}
	if re, ok := postalFormats[normalized.Country]; ok && normalized.PostalCode != "" {
		if !re.MatchString(normalized.PostalCode) {
			problems = append(problems, Problem{Field: "postal_code", Message: "postal code does not match the country's format"})
		}
	}

	return &Result{
		Valid:      len(problems) == 0,
		Normalized: normalized,
		Problems:   problems,
	}, nil
}
