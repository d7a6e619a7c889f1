// Package memory is the in-memory store implementation. It backs the test
// suite and development mode; semantics mirror store/postgres exactly,
// with a single mutex standing in for the database's atomicity.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvrhoads/njord/internal/domain"
	"github.com/dvrhoads/njord/internal/store"
)

// Store holds all aggregates behind one mutex so that the compound
// operations (CreateOrder with a coupon reservation) stay atomic.
type Store struct {
	mu sync.Mutex

	carts    map[string]*domain.Cart
	coupons  map[uuid.UUID]*domain.Coupon
	byCode   map[string]uuid.UUID
	usages   map[uuid.UUID]*domain.CouponUsage
	orders   map[uuid.UUID]*domain.Order
	payments map[uuid.UUID]*domain.Payment
	attempts map[uuid.UUID][]domain.PaymentAttempt
	refunds  map[uuid.UUID][]domain.Refund
}

var _ store.Store = (*Store)(nil)

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		carts:    make(map[string]*domain.Cart),
		coupons:  make(map[uuid.UUID]*domain.Coupon),
		byCode:   make(map[string]uuid.UUID),
		usages:   make(map[uuid.UUID]*domain.CouponUsage),
		orders:   make(map[uuid.UUID]*domain.Order),
		payments: make(map[uuid.UUID]*domain.Payment),
		attempts: make(map[uuid.UUID][]domain.PaymentAttempt),
		refunds:  make(map[uuid.UUID][]domain.Refund),
	}
}

func (s *Store) Carts() store.CartStore       { return s }
func (s *Store) Coupons() store.CouponStore   { return s }
func (s *Store) Orders() store.OrderStore     { return s }
func (s *Store) Payments() store.PaymentStore { return s }

// PutCoupon inserts or replaces a coupon. Coupon administration is
// upstream of this service; tests and dev seeding use this directly.
func (s *Store) PutCoupon(c *domain.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneCoupon(c)
	s.coupons[cp.ID] = cp
	s.byCode[cp.Code] = cp.ID
}

// =============================================================================
// CartStore
// =============================================================================

func (s *Store) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	return cloneCart(cart), nil
}

func (s *Store) SaveCart(ctx context.Context, cart *domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[cart.UserID] = cloneCart(cart)
	return nil
}

func (s *Store) DeleteCart(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	return nil
}

// =============================================================================
// CouponStore
// =============================================================================

func (s *Store) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCode[code]
	if !ok {
		return nil, domain.ErrCouponNotFound
	}
	return cloneCoupon(s.coupons[id]), nil
}

func (s *Store) GetCoupon(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[id]
	if !ok {
		return nil, domain.ErrCouponNotFound
	}
	return cloneCoupon(c), nil
}

func (s *Store) CountUserUsage(ctx context.Context, couponID uuid.UUID, userID string) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countUserUsageLocked(couponID, userID), nil
}

func (s *Store) ReserveUsage(ctx context.Context, usage *domain.CouponUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserveUsageLocked(usage)
}

func (s *Store) ReleaseUsage(ctx context.Context, couponID, orderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.usages {
		if u.CouponID == couponID && u.OrderID == orderID {
			delete(s.usages, id)
			if c, ok := s.coupons[couponID]; ok && c.UsageCount > 0 {
				c.UsageCount--
			}
			return nil
		}
	}
	return nil
}

func (s *Store) countUserUsageLocked(couponID uuid.UUID, userID string) int32 {
	var n int32
	for _, u := range s.usages {
		if u.CouponID == couponID && u.UserID == userID {
			n++
		}
	}
	return n
}

// reserveUsageLocked is the compare-and-increment guard. The caller holds
// the mutex, which is this implementation's equivalent of the conditional
// UPDATE in the postgres store.
func (s *Store) reserveUsageLocked(usage *domain.CouponUsage) error {
	c, ok := s.coupons[usage.CouponID]
	if !ok {
		return domain.ErrCouponNotFound
	}
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return domain.ErrUsageLimitReached
	}
	if c.UserUsageLimit > 0 && s.countUserUsageLocked(usage.CouponID, usage.UserID) >= c.UserUsageLimit {
		return domain.ErrUserUsageLimitReached
	}
	c.UsageCount++
	u := *usage
	s.usages[u.ID] = &u
	return nil
}

// =============================================================================
// OrderStore
// =============================================================================

func (s *Store) CreateOrder(ctx context.Context, params store.CreateOrderParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Reservation first: it is the only step that can fail on a business
	// rule, and failing before any insert keeps creation all-or-nothing.
	if params.Usage != nil {
		if err := s.reserveUsageLocked(params.Usage); err != nil {
			return err
		}
	}

	s.orders[params.Order.ID] = cloneOrder(params.Order)
	p := *params.Payment
	s.payments[p.ID] = &p
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.Status != from {
		return domain.ErrTransitionConflict
	}
	o.Status = to
	o.StampTransition(to, at)
	return nil
}

func (s *Store) ListStalePending(ctx context.Context, cutoff time.Time, limit int32) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*domain.Order
	for _, o := range s.orders {
		if o.Status == domain.OrderPending && o.CreatedAt.Before(cutoff) {
			stale = append(stale, cloneOrder(o))
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if int32(len(stale)) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// =============================================================================
// PaymentStore
// =============================================================================

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.OrderID == orderID {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (s *Store) GetPaymentByExternalID(ctx context.Context, externalTxnID string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.ExternalTransactionID != nil && *p.ExternalTransactionID == externalTxnID {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (s *Store) GetPaymentByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.IdempotencyKey == key {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (s *Store) SetGatewayOrder(ctx context.Context, paymentID uuid.UUID, gatewayOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	p.GatewayOrderID = gatewayOrderID
	p.UpdatedAt = time.Now()
	return nil
}

func (s *Store) TransitionPayment(ctx context.Context, paymentID uuid.UUID, from, to domain.PaymentStatus, externalTxnID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if p.Status != from {
		return domain.ErrPaymentStateConflict
	}
	p.Status = to
	if externalTxnID != "" {
		id := externalTxnID
		p.ExternalTransactionID = &id
	}
	p.UpdatedAt = at
	return nil
}

func (s *Store) CreateAttempt(ctx context.Context, attempt *domain.PaymentAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempt.PaymentID] = append(s.attempts[attempt.PaymentID], *attempt)
	return nil
}

func (s *Store) ListAttempts(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PaymentAttempt, len(s.attempts[paymentID]))
	copy(out, s.attempts[paymentID])
	return out, nil
}

func (s *Store) ApplyRefund(ctx context.Context, refund *domain.Refund) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[refund.PaymentID]
	if !ok {
		return 0, domain.ErrPaymentNotFound
	}
	if p.RefundedCents+refund.AmountCents > p.AmountCents {
		return 0, domain.ErrRefundExceedsAvailable
	}
	p.RefundedCents += refund.AmountCents
	p.UpdatedAt = time.Now()
	s.refunds[refund.PaymentID] = append(s.refunds[refund.PaymentID], *refund)
	return p.RefundedCents, nil
}

// =============================================================================
// clone helpers: callers get copies so test goroutines never share the
// maps' backing values.
// =============================================================================

func cloneCart(c *domain.Cart) *domain.Cart {
	out := *c
	out.Items = make([]domain.CartItem, len(c.Items))
	copy(out.Items, c.Items)
	return &out
}

func cloneCoupon(c *domain.Coupon) *domain.Coupon {
	out := *c
	out.IncludedProducts = append([]string(nil), c.IncludedProducts...)
	out.ExcludedProducts = append([]string(nil), c.ExcludedProducts...)
	out.IncludedCategories = append([]string(nil), c.IncludedCategories...)
	out.ExcludedCategories = append([]string(nil), c.ExcludedCategories...)
	out.BulkTiers = append([]domain.BulkTier(nil), c.BulkTiers...)
	return &out
}

func cloneOrder(o *domain.Order) *domain.Order {
	out := *o
	out.Items = make([]domain.OrderItem, len(o.Items))
	copy(out.Items, o.Items)
	return &out
}

func clonePayment(p *domain.Payment) *domain.Payment {
	out := *p
	if p.ExternalTransactionID != nil {
		id := *p.ExternalTransactionID
		out.ExternalTransactionID = &id
	}
	return &out
}
