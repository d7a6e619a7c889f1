package tax

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPercentageCalculator(t *testing.T) {
	tests := []struct {
		name    string
		rate    float64
		wantErr error
	}{
		{"valid rate", 0.0875, nil},
		{"zero rate", 0, nil},
		{"full rate", 1, nil},
		{"negative rate", -0.05, ErrInvalidRate},
		{"rate above one", 1.5, ErrInvalidRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc, err := NewPercentageCalculator(tt.rate)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, calc)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, calc)
		})
	}
}

func TestPercentageCalculator_CalculateTax(t *testing.T) {
	tests := []struct {
		name         string
		rate         float64
		taxableCents int64
		wantTaxCents int64
		explanation  string
	}{
		{
			name:         "standard rate on round amount",
			rate:         0.10,
			taxableCents: 10000,
			wantTaxCents: 1000,
			explanation:  "10% of $100.00 is $10.00",
		},
		{
			name:         "fractional rate rounds to nearest cent",
			rate:         0.0875,
			taxableCents: 1999,
			wantTaxCents: 175,
			explanation:  "8.75% of $19.99 is $1.749, rounds to $1.75",
		},
		{
			name:         "half cent rounds up",
			rate:         0.05,
			taxableCents: 1990,
			wantTaxCents: 100,
			explanation:  "5% of $19.90 is $0.995, rounds to $1.00",
		},
		{
			name:         "zero taxable amount",
			rate:         0.10,
			taxableCents: 0,
			wantTaxCents: 0,
			explanation:  "fully discounted order owes no tax",
		},
		{
			name:         "shipping is not taxed",
			rate:         0.10,
			taxableCents: 5000,
			wantTaxCents: 500,
			explanation:  "tax applies to the taxable amount only, shipping excluded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc, err := NewPercentageCalculator(tt.rate)
			require.NoError(t, err)

			result, err := calc.CalculateTax(context.Background(), Params{
				TaxableCents:  tt.taxableCents,
				ShippingCents: 999,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantTaxCents, result.TaxCents, tt.explanation)
			assert.InDelta(t, tt.rate, result.Rate, 0.0001)
		})
	}
}

func TestPercentageCalculator_NegativeAmount(t *testing.T) {
	calc, err := NewPercentageCalculator(0.10)
	require.NoError(t, err)

	_, err = calc.CalculateTax(context.Background(), Params{TaxableCents: -100})
	assert.ErrorIs(t, err, ErrNegativeAmount)
}
