package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvrhoads/njord/internal/domain"
	"github.com/dvrhoads/njord/internal/store"
)

// CartService manages mutable user carts. Checkout reads the cart only
// through Snapshot; the resulting order never sees later mutations.
type CartService struct {
	carts  store.CartStore
	logger zerolog.Logger
	now    func() time.Time
}

var _ domain.CartService = (*CartService)(nil)

// NewCartService creates a cart service over the given store.
func NewCartService(carts store.CartStore, logger zerolog.Logger) *CartService {
	return &CartService{carts: carts, logger: logger, now: time.Now}
}

// GetCart retrieves the user's cart, empty if none exists yet.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return &domain.Cart{UserID: userID, Items: []domain.CartItem{}}, nil
		}
		return nil, domain.WrapError(err, domain.EINTERNAL, "cart.get", "failed to load cart")
	}
	return cart, nil
}

// AddItem adds a product to the cart, bumping quantity if the product is
// already present.
func (s *CartService) AddItem(ctx context.Context, userID string, item domain.CartItem) (*domain.Cart, error) {
	if item.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if item.Quantity > domain.MaxLineQuantity {
		return nil, domain.ErrQuantityTooLarge
	}
	if item.ProductID == "" {
		return nil, domain.Invalid("cart.add_item", "product_id is required")
	}
	if item.UnitPriceCents < 0 {
		return nil, domain.Invalid("cart.add_item", "unit price cannot be negative")
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == item.ProductID {
			if cart.Items[i].Quantity > domain.MaxLineQuantity-item.Quantity {
				return nil, domain.ErrQuantityTooLarge
			}
			cart.Items[i].Quantity += item.Quantity
			found = true
			break
		}
	}
	if !found {
		cart.Items = append(cart.Items, item)
	}
	cart.UpdatedAt = s.now()

	if err := s.carts.SaveCart(ctx, cart); err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, "cart.add_item", "failed to save cart")
	}
	return cart, nil
}

// UpdateItemQuantity sets the quantity of a cart line. A quantity of 0
// removes the line.
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID, productID string, quantity int32) (*domain.Cart, error) {
	if quantity < 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if quantity > domain.MaxLineQuantity {
		return nil, domain.ErrQuantityTooLarge
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity = quantity
			found = true
			break
		}
	}
	if !found {
		return nil, domain.ErrCartItemNotFound
	}
	cart.UpdatedAt = s.now()

	if err := s.carts.SaveCart(ctx, cart); err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, "cart.update_item", "failed to save cart")
	}
	return cart, nil
}

// RemoveItem removes a product from the cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := cart.Items[:0]
	found := false
	for _, it := range cart.Items {
		if it.ProductID == productID {
			found = true
			continue
		}
		items = append(items, it)
	}
	if !found {
		return nil, domain.ErrCartItemNotFound
	}
	cart.Items = items
	cart.UpdatedAt = s.now()

	if err := s.carts.SaveCart(ctx, cart); err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, "cart.remove_item", "failed to save cart")
	}
	return cart, nil
}

// ClearCart removes all items from the cart.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if err := s.carts.DeleteCart(ctx, userID); err != nil {
		return domain.WrapError(err, domain.EINTERNAL, "cart.clear", "failed to clear cart")
	}
	return nil
}

// Snapshot freezes the current cart contents for checkout. An empty or
// missing cart cannot be snapshotted.
func (s *CartService) Snapshot(ctx context.Context, userID string) (*domain.CartSnapshot, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}
	return domain.SnapshotCart(cart, s.now()), nil
}
