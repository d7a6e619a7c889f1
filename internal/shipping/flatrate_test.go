package shipping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFlatRateProvider(t *testing.T) {
	tests := []struct {
		name          string
		costCents     int64
		freeOverCents int64
		wantErr       error
	}{
		{"valid config", 599, 5000, nil},
		{"free shipping disabled", 599, 0, nil},
		{"negative cost", -1, 0, ErrInvalidCost},
		{"negative threshold", 599, -1, ErrInvalidCost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewFlatRateProvider(tt.costCents, tt.freeOverCents)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, p)
		})
	}
}

func TestFlatRateProvider_Quote(t *testing.T) {
	tests := []struct {
		name          string
		costCents     int64
		freeOverCents int64
		subtotalCents int64
		itemCount     int32
		wantCostCents int64
		wantErr       error
		explanation   string
	}{
		{
			name:          "below threshold charges flat rate",
			costCents:     599,
			freeOverCents: 5000,
			subtotalCents: 4999,
			itemCount:     2,
			wantCostCents: 599,
			explanation:   "$49.99 is under the $50 threshold",
		},
		{
			name:          "at threshold ships free",
			costCents:     599,
			freeOverCents: 5000,
			subtotalCents: 5000,
			itemCount:     2,
			wantCostCents: 0,
			explanation:   "threshold is inclusive",
		},
		{
			name:          "above threshold ships free",
			costCents:     599,
			freeOverCents: 5000,
			subtotalCents: 12000,
			itemCount:     5,
			wantCostCents: 0,
			explanation:   "$120.00 clears the threshold",
		},
		{
			name:          "zero threshold always charges",
			costCents:     599,
			freeOverCents: 0,
			subtotalCents: 100000,
			itemCount:     10,
			wantCostCents: 599,
			explanation:   "threshold of zero disables free shipping",
		},
		{
			name:        "empty order rejected",
			costCents:   599,
			itemCount:   0,
			wantErr:     ErrNoItems,
			explanation: "nothing to ship",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewFlatRateProvider(tt.costCents, tt.freeOverCents)
			require.NoError(t, err)

			quote, err := p.Quote(context.Background(), QuoteParams{
				SubtotalCents: tt.subtotalCents,
				ItemCount:     tt.itemCount,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr, tt.explanation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCostCents, quote.CostCents, tt.explanation)
			assert.Equal(t, "Standard Shipping", quote.ServiceName)
		})
	}
}
