package service

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvrhoads/njord/internal/address"
	"github.com/dvrhoads/njord/internal/domain"
	"github.com/dvrhoads/njord/internal/notify"
	"github.com/dvrhoads/njord/internal/shipping"
	"github.com/dvrhoads/njord/internal/store"
	"github.com/dvrhoads/njord/internal/tax"
	"github.com/dvrhoads/njord/internal/telemetry"
)

// CheckoutParams is the input for creating an order.
type CheckoutParams struct {
	UserID          string
	CouponCode      string
	PaymentMethod   domain.PaymentMethodType
	ShippingAddress string
	Country         string
	Region          string
	PostalCode      string
}

// CheckoutService turns a cart snapshot into a priced, persisted order
// with its paired pending payment.
type CheckoutService struct {
	store     store.Store
	carts     domain.CartService
	coupons   domain.CouponService
	addresses address.Validator
	taxes     tax.Calculator
	shipping  shipping.Provider
	events    notify.Dispatcher
	logger    zerolog.Logger
	currency  string
	now       func() time.Time
}

// NewCheckoutService wires the checkout pipeline.
func NewCheckoutService(
	st store.Store,
	carts domain.CartService,
	coupons domain.CouponService,
	addresses address.Validator,
	taxes tax.Calculator,
	ship shipping.Provider,
	events notify.Dispatcher,
	logger zerolog.Logger,
	currency string,
) *CheckoutService {
	return &CheckoutService{
		store:     st,
		carts:     carts,
		coupons:   coupons,
		addresses: addresses,
		taxes:     taxes,
		shipping:  ship,
		events:    events,
		logger:    logger,
		currency:  currency,
		now:       time.Now,
	}
}

// CreateOrder runs the whole checkout: snapshot the cart, validate the
// coupon, price shipping and tax, and persist the order with its pending
// payment and coupon reservation in one atomic write. Any failure leaves
// no trace: no order, no payment, no usage consumed.
func (s *CheckoutService) CreateOrder(ctx context.Context, params CheckoutParams) (*domain.Order, error) {
	const op = "checkout.create_order"

	if !domain.ValidPaymentMethod(params.PaymentMethod) {
		return nil, domain.Invalid(op, "unknown payment method")
	}

	addr, err := s.addresses.Validate(ctx, address.Address{
		Line1:      params.ShippingAddress,
		Region:     params.Region,
		PostalCode: params.PostalCode,
		Country:    params.Country,
	})
	if err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, op, "failed to validate address")
	}
	if !addr.Valid {
		return nil, domain.Invalid(op, addr.Problems[0].Message)
	}
	dest := addr.Normalized

	snap, err := s.carts.Snapshot(ctx, params.UserID)
	if err != nil {
		return nil, err
	}

	var itemCount int32
	for _, l := range snap.Lines {
		itemCount += l.Quantity
	}

	// Shipping is quoted on the pre-discount subtotal so the quote does
	// not depend on coupon evaluation order.
	quote, err := s.shipping.Quote(ctx, shipping.QuoteParams{
		SubtotalCents: snap.SubtotalCents,
		ItemCount:     itemCount,
		Country:       dest.Country,
		Region:        dest.Region,
		PostalCode:    dest.PostalCode,
	})
	if err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, op, "failed to quote shipping")
	}

	var couponResult *domain.CouponResult
	if params.CouponCode != "" {
		couponResult, err = s.coupons.Validate(ctx, params.CouponCode, snap, params.UserID, quote.CostCents)
		if err != nil {
			return nil, err
		}
	}

	var discountCents int64
	if couponResult != nil {
		discountCents = couponResult.TotalDiscountCents()
	}

	taxable := snap.SubtotalCents
	if couponResult != nil {
		taxable -= couponResult.SubtotalOffCents
	}
	taxResult, err := s.taxes.CalculateTax(ctx, tax.Params{
		TaxableCents:  taxable,
		ShippingCents: quote.CostCents,
		Country:       dest.Country,
		Region:        dest.Region,
		PostalCode:    dest.PostalCode,
	})
	if err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, op, "failed to calculate tax")
	}

	now := s.now()
	orderID := uuid.New()

	order := &domain.Order{
		ID:              orderID,
		UserID:          params.UserID,
		SubtotalCents:   snap.SubtotalCents,
		DiscountCents:   discountCents,
		TaxCents:        taxResult.TaxCents,
		ShippingCents:   quote.CostCents,
		TotalCents:      snap.SubtotalCents - discountCents + taxResult.TaxCents + quote.CostCents,
		Currency:        s.currency,
		Status:          domain.OrderPending,
		ShippingAddress: dest.Line1,
		CreatedAt:       now,
	}
	for _, line := range snap.Lines {
		order.Items = append(order.Items, domain.OrderItem{
			ID:             uuid.New(),
			OrderID:        orderID,
			ProductID:      line.ProductID,
			ProductName:    line.ProductName,
			Category:       line.Category,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
		})
	}
	if err := order.CheckTotal(); err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		ID:             uuid.New(),
		OrderID:        orderID,
		Method:         params.PaymentMethod,
		AmountCents:    order.TotalCents,
		Currency:       s.currency,
		Status:         domain.PaymentPending,
		IdempotencyKey: uuid.NewString(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	createParams := store.CreateOrderParams{Order: order, Payment: payment}
	if couponResult != nil {
		order.AppliedCouponID = &couponResult.CouponID
		createParams.Usage = &domain.CouponUsage{
			ID:            uuid.New(),
			CouponID:      couponResult.CouponID,
			OrderID:       orderID,
			UserID:        params.UserID,
			DiscountCents: discountCents,
			CreatedAt:     now,
		}
	}

	if err := s.store.Orders().CreateOrder(ctx, createParams); err != nil {
		s.recordCheckoutFailure(err)
		return nil, err
	}

	// The cart served its purpose; a failure here leaves a stale cart
	// behind but never affects the committed order.
	if err := s.carts.ClearCart(ctx, params.UserID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", params.UserID).Msg("failed to clear cart after checkout")
	}

	s.recordCheckoutSuccess(order, couponResult)
	s.publishCreated(ctx, order)

	s.logger.Info().
		Str("order_id", orderID.String()).
		Str("user_id", params.UserID).
		Int64("total_cents", order.TotalCents).
		Bool("coupon_applied", couponResult != nil).
		Msg("order created")

	return order, nil
}

func (s *CheckoutService) publishCreated(ctx context.Context, order *domain.Order) {
	err := s.events.PublishOrderEvent(ctx, notify.SubjectOrderCreated, notify.OrderEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		ToStatus:   string(domain.OrderPending),
		TotalCents: order.TotalCents,
		OccurredAt: order.CreatedAt,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("failed to publish order created event")
	}
}

func (s *CheckoutService) recordCheckoutSuccess(order *domain.Order, couponResult *domain.CouponResult) {
	m := telemetry.Business
	if m == nil {
		return
	}
	m.CheckoutCompleted.WithLabelValues(strconv.FormatBool(couponResult != nil)).Inc()
	m.OrdersCreated.WithLabelValues(order.Currency).Inc()
	m.OrderValue.WithLabelValues(order.Currency).Observe(float64(order.TotalCents) / 100)
	if couponResult != nil {
		m.CouponsRedeemed.WithLabelValues(string(couponResult.Type)).Inc()
		m.DiscountAmount.WithLabelValues(string(couponResult.Type)).Add(float64(couponResult.TotalDiscountCents()))
	}
}

func (s *CheckoutService) recordCheckoutFailure(err error) {
	if m := telemetry.Business; m != nil {
		m.CheckoutFailed.WithLabelValues(domain.ErrorCode(err)).Inc()
	}
}
