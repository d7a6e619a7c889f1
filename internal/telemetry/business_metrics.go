package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for business-level observability
// of the checkout and fulfillment pipeline.
type BusinessMetrics struct {
	// Checkout
	CheckoutCompleted *prometheus.CounterVec
	CheckoutFailed    *prometheus.CounterVec
	OrderValue        *prometheus.HistogramVec

	// Orders
	OrdersCreated      *prometheus.CounterVec
	OrderTransitions   *prometheus.CounterVec
	OrdersCancelled    *prometheus.CounterVec
	OrdersExpired      prometheus.Counter
	TransitionConflict *prometheus.CounterVec

	// Coupons
	CouponsValidated *prometheus.CounterVec
	CouponsRedeemed  *prometheus.CounterVec
	CouponsReleased  *prometheus.CounterVec
	DiscountAmount   *prometheus.CounterVec

	// Payments
	PaymentAttempts  *prometheus.CounterVec
	PaymentSucceeded *prometheus.CounterVec
	PaymentFailed    *prometheus.CounterVec

	// Webhooks
	WebhookReceived  *prometheus.CounterVec
	WebhookProcessed *prometheus.CounterVec
	WebhookFailed    *prometheus.CounterVec
	WebhookLatency   *prometheus.HistogramVec

	// Refunds
	RefundsIssued *prometheus.CounterVec
	RefundAmount  *prometheus.CounterVec

	// External API performance
	GatewayAPILatency *prometheus.HistogramVec
}

// NewBusinessMetrics creates and registers all business metrics
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	if namespace == "" {
		namespace = "njord"
	}

	subsystem := "business"

	m := &BusinessMetrics{
		// =======================================================================
		// Checkout
		// =======================================================================
		CheckoutCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_completed_total",
				Help:      "Total successful order creations",
			},
			[]string{"coupon_applied"}, // coupon_applied: true, false
		),
		CheckoutFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_failed_total",
				Help:      "Total failed order creations by error code",
			},
			[]string{"code"},
		),
		OrderValue: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_value_dollars",
				Help:      "Distribution of order totals in dollars",
				Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"currency"},
		),

		// =======================================================================
		// Orders
		// =======================================================================
		OrdersCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_created_total",
				Help:      "Total orders created",
			},
			[]string{"currency"},
		),
		OrderTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_transitions_total",
				Help:      "Total order status transitions",
			},
			[]string{"from", "to"},
		),
		OrdersCancelled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_cancelled_total",
				Help:      "Total orders cancelled",
			},
			[]string{"from"}, // status the order was in when cancelled
		),
		OrdersExpired: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_expired_total",
				Help:      "Total pending orders cancelled by the abandonment sweeper",
			},
		),
		TransitionConflict: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_transition_conflicts_total",
				Help:      "Total transitions rejected because the order moved concurrently",
			},
			[]string{"to"},
		),

		// =======================================================================
		// Coupons
		// =======================================================================
		CouponsValidated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "coupons_validated_total",
				Help:      "Total coupon validation attempts by outcome",
			},
			[]string{"outcome"}, // outcome: valid, invalid
		),
		CouponsRedeemed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "coupons_redeemed_total",
				Help:      "Total coupon usages reserved at order creation",
			},
			[]string{"type"},
		),
		CouponsReleased: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "coupons_released_total",
				Help:      "Total coupon usages released on cancellation",
			},
			[]string{"type"},
		),
		DiscountAmount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "discount_amount_cents_total",
				Help:      "Total discount granted in cents",
			},
			[]string{"type"},
		),

		// =======================================================================
		// Payments
		// =======================================================================
		PaymentAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_attempts_total",
				Help:      "Total payment operations by kind",
			},
			[]string{"kind"}, // kind: create, verify, webhook, refund
		),
		PaymentSucceeded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_succeeded_total",
				Help:      "Total payments confirmed successful",
			},
			[]string{"source"}, // source: verify, webhook
		),
		PaymentFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_failed_total",
				Help:      "Total payments marked failed",
			},
			[]string{"source"},
		),

		// =======================================================================
		// Webhooks
		// =======================================================================
		WebhookReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhooks_received_total",
				Help:      "Total webhook deliveries received",
			},
			[]string{"event"},
		),
		WebhookProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhooks_processed_total",
				Help:      "Total webhook deliveries applied to a payment",
			},
			[]string{"event"},
		),
		WebhookFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhooks_failed_total",
				Help:      "Total webhook deliveries rejected by reason",
			},
			[]string{"reason"}, // reason: signature, processing
		),
		WebhookLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_duration_seconds",
				Help:      "Webhook processing duration",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"event"},
		),

		// =======================================================================
		// Refunds
		// =======================================================================
		RefundsIssued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "refunds_issued_total",
				Help:      "Total refunds issued",
			},
			[]string{"kind"}, // kind: partial, full
		),
		RefundAmount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "refund_amount_cents_total",
				Help:      "Total refunded amount in cents",
			},
			[]string{"kind"},
		),

		// =======================================================================
		// External API Performance
		// =======================================================================
		GatewayAPILatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "gateway_api_duration_seconds",
				Help:      "Payment gateway API call duration (helps differentiate app slowness from gateway issues)",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"}, // operation: create_order, verify, refund
		),
	}

	return m
}

// Global instance for easy access from handlers
var Business *BusinessMetrics

// InitBusinessMetrics initializes the global business metrics instance
func InitBusinessMetrics(namespace string) *BusinessMetrics {
	Business = NewBusinessMetrics(namespace)
	return Business
}
