package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCanTransitionOrder(t *testing.T) {
	tests := []struct {
		name    string
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{"pending to confirmed", OrderPending, OrderConfirmed, true},
		{"confirmed to processing", OrderConfirmed, OrderProcessing, true},
		{"processing to shipped", OrderProcessing, OrderShipped, true},
		{"shipped to delivered", OrderShipped, OrderDelivered, true},
		{"pending to cancelled", OrderPending, OrderCancelled, true},
		{"confirmed to cancelled", OrderConfirmed, OrderCancelled, true},
		{"processing to cancelled", OrderProcessing, OrderCancelled, true},
		{"delivered to returned", OrderDelivered, OrderReturned, true},
		{"delivered to refunded", OrderDelivered, OrderRefunded, true},

		{"no skipping forward", OrderPending, OrderShipped, false},
		{"no skipping to delivered", OrderConfirmed, OrderDelivered, false},
		{"no backward moves", OrderShipped, OrderConfirmed, false},
		{"shipped cannot cancel", OrderShipped, OrderCancelled, false},
		{"delivered cannot cancel", OrderDelivered, OrderCancelled, false},
		{"refund only after delivery", OrderConfirmed, OrderRefunded, false},
		{"return only after delivery", OrderProcessing, OrderReturned, false},
		{"cancelled is terminal", OrderCancelled, OrderConfirmed, false},
		{"refunded is terminal", OrderRefunded, OrderDelivered, false},
		{"no self transition", OrderPending, OrderPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransitionOrder(tt.from, tt.to); got != tt.allowed {
				t.Errorf("CanTransitionOrder(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestOrderStatus_Helpers(t *testing.T) {
	for _, s := range []OrderStatus{OrderPending, OrderConfirmed, OrderProcessing} {
		if !s.Cancellable() {
			t.Errorf("%s should be cancellable", s)
		}
	}
	for _, s := range []OrderStatus{OrderShipped, OrderDelivered, OrderCancelled, OrderReturned, OrderRefunded} {
		if s.Cancellable() {
			t.Errorf("%s should not be cancellable", s)
		}
	}

	for _, s := range []OrderStatus{OrderCancelled, OrderReturned, OrderRefunded} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if OrderDelivered.Terminal() {
		t.Error("delivered still allows returns and refunds")
	}

	if ValidOrderStatus("teleported") {
		t.Error("unknown status should not validate")
	}
}

func TestOrder_CheckTotal(t *testing.T) {
	base := func() *Order {
		return &Order{
			ID:            uuid.New(),
			SubtotalCents: 10000,
			DiscountCents: 1000,
			TaxCents:      800,
			ShippingCents: 500,
			TotalCents:    10300,
		}
	}

	t.Run("valid breakdown", func(t *testing.T) {
		if err := base().CheckTotal(); err != nil {
			t.Errorf("valid total should pass, got %v", err)
		}
	})

	t.Run("mismatched total", func(t *testing.T) {
		o := base()
		o.TotalCents = 9999
		if err := o.CheckTotal(); err == nil {
			t.Error("mismatched total should fail")
		}
	})

	t.Run("negative total", func(t *testing.T) {
		o := base()
		o.DiscountCents = 12000
		o.TotalCents = o.SubtotalCents - o.DiscountCents + o.TaxCents + o.ShippingCents
		err := o.CheckTotal()
		if err == nil {
			t.Fatal("negative total should fail")
		}
		if ErrorCode(err) != EINTERNAL {
			t.Errorf("code = %q, want %q", ErrorCode(err), EINTERNAL)
		}
	})
}

func TestOrder_StampTransition(t *testing.T) {
	o := &Order{ID: uuid.New(), Status: OrderPending}
	now := time.Now()

	o.StampTransition(OrderConfirmed, now)
	if o.ConfirmedAt == nil || !o.ConfirmedAt.Equal(now) {
		t.Error("confirmed timestamp should be stamped")
	}
	if o.ShippedAt != nil || o.CancelledAt != nil {
		t.Error("other timestamps must stay nil")
	}

	later := now.Add(time.Hour)
	o.StampTransition(OrderCancelled, later)
	if o.CancelledAt == nil || !o.CancelledAt.Equal(later) {
		t.Error("cancelled timestamp should be stamped")
	}
}

func TestCouponAppliesToLine(t *testing.T) {
	tests := []struct {
		name      string
		coupon    Coupon
		productID string
		category  string
		want      bool
	}{
		{
			name:      "no filters matches everything",
			coupon:    Coupon{},
			productID: "p1",
			category:  "shoes",
			want:      true,
		},
		{
			name:      "included product matches",
			coupon:    Coupon{IncludedProducts: []string{"p1"}},
			productID: "p1",
			category:  "shoes",
			want:      true,
		},
		{
			name:      "outside include set",
			coupon:    Coupon{IncludedProducts: []string{"p2"}},
			productID: "p1",
			category:  "shoes",
			want:      false,
		},
		{
			name:      "included category matches",
			coupon:    Coupon{IncludedCategories: []string{"shoes"}},
			productID: "p1",
			category:  "shoes",
			want:      true,
		},
		{
			name:      "exclusion beats inclusion",
			coupon:    Coupon{IncludedCategories: []string{"shoes"}, ExcludedProducts: []string{"p1"}},
			productID: "p1",
			category:  "shoes",
			want:      false,
		},
		{
			name:      "excluded category",
			coupon:    Coupon{ExcludedCategories: []string{"shoes"}},
			productID: "p1",
			category:  "shoes",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.coupon.AppliesToLine(tt.productID, tt.category); got != tt.want {
				t.Errorf("AppliesToLine() = %v, want %v", got, tt.want)
			}
		})
	}
}
