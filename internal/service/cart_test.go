package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvrhoads/njord/internal/domain"
	"github.com/dvrhoads/njord/internal/store/memory"
)

func newTestCartService() *CartService {
	return NewCartService(memory.NewStore().Carts(), zerolog.Nop())
}

func TestCartService_AddItem(t *testing.T) {
	svc := newTestCartService()
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, "user-1", domain.CartItem{
		ProductID:      "sku-1",
		ProductName:    "Mug",
		UnitPriceCents: 1500,
		Quantity:       2,
	})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(3000), cart.Subtotal())

	// Adding the same product bumps quantity instead of duplicating the line.
	cart, err = svc.AddItem(ctx, "user-1", domain.CartItem{
		ProductID:      "sku-1",
		ProductName:    "Mug",
		UnitPriceCents: 1500,
		Quantity:       1,
	})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int32(3), cart.Items[0].Quantity)
}

func TestCartService_AddItem_Invalid(t *testing.T) {
	svc := newTestCartService()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "user-1", domain.CartItem{ProductID: "sku-1", Quantity: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = svc.AddItem(ctx, "user-1", domain.CartItem{Quantity: 1})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestCartService_QuantityCap(t *testing.T) {
	svc := newTestCartService()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "user-1", domain.CartItem{
		ProductID: "sku-1", UnitPriceCents: 100, Quantity: domain.MaxLineQuantity + 1,
	})
	assert.ErrorIs(t, err, domain.ErrQuantityTooLarge)

	// Bumping an existing line past the cap is rejected too.
	_, err = svc.AddItem(ctx, "user-1", domain.CartItem{
		ProductID: "sku-1", UnitPriceCents: 100, Quantity: domain.MaxLineQuantity,
	})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "user-1", domain.CartItem{
		ProductID: "sku-1", UnitPriceCents: 100, Quantity: 1,
	})
	assert.ErrorIs(t, err, domain.ErrQuantityTooLarge)

	_, err = svc.UpdateItemQuantity(ctx, "user-1", "sku-1", domain.MaxLineQuantity+1)
	assert.ErrorIs(t, err, domain.ErrQuantityTooLarge)
}

func TestCartService_UpdateItemQuantity(t *testing.T) {
	svc := newTestCartService()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "user-1", domain.CartItem{ProductID: "sku-1", UnitPriceCents: 1000, Quantity: 2})
	require.NoError(t, err)

	cart, err := svc.UpdateItemQuantity(ctx, "user-1", "sku-1", 5)
	require.NoError(t, err)
	assert.Equal(t, int32(5), cart.Items[0].Quantity)

	// Quantity 0 removes the line.
	cart, err = svc.UpdateItemQuantity(ctx, "user-1", "sku-1", 0)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	_, err = svc.UpdateItemQuantity(ctx, "user-1", "missing", 3)
	assert.ErrorIs(t, err, domain.ErrCartItemNotFound)
}

func TestCartService_RemoveItem(t *testing.T) {
	svc := newTestCartService()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "user-1", domain.CartItem{ProductID: "sku-1", UnitPriceCents: 1000, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "user-1", domain.CartItem{ProductID: "sku-2", UnitPriceCents: 2000, Quantity: 1})
	require.NoError(t, err)

	cart, err := svc.RemoveItem(ctx, "user-1", "sku-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "sku-2", cart.Items[0].ProductID)
}

func TestCartService_Snapshot_Immutable(t *testing.T) {
	svc := newTestCartService()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "user-1", domain.CartItem{ProductID: "sku-1", UnitPriceCents: 1000, Quantity: 2})
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), snap.SubtotalCents)

	// Later cart mutations never reach an existing snapshot.
	_, err = svc.AddItem(ctx, "user-1", domain.CartItem{ProductID: "sku-2", UnitPriceCents: 9999, Quantity: 1})
	require.NoError(t, err)

	assert.Len(t, snap.Lines, 1)
	assert.Equal(t, int64(2000), snap.SubtotalCents)
}

func TestCartService_Snapshot_EmptyCart(t *testing.T) {
	svc := newTestCartService()

	_, err := svc.Snapshot(context.Background(), "user-1")
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
}
