package domain

import (
	"context"
	"testing"
)

func TestIdentityContext(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		id := Identity{UserID: "user-42", Role: RoleCustomer}
		ctx := NewContextWithIdentity(context.Background(), id)

		got, ok := IdentityFromContext(ctx)
		if !ok {
			t.Fatal("identity should be present")
		}
		if got.UserID != "user-42" || got.Role != RoleCustomer {
			t.Errorf("got %+v, want %+v", got, id)
		}
	})

	t.Run("missing identity", func(t *testing.T) {
		_, ok := IdentityFromContext(context.Background())
		if ok {
			t.Error("identity should be absent on empty context")
		}
		if IsAuthenticated(context.Background()) {
			t.Error("IsAuthenticated should be false on empty context")
		}
	})
}

func TestIdentityStaff(t *testing.T) {
	tests := []struct {
		role  Role
		staff bool
	}{
		{RoleCustomer, false},
		{RoleManager, true},
		{RoleAdmin, true},
	}

	for _, tt := range tests {
		id := Identity{UserID: "u", Role: tt.role}
		if got := id.Staff(); got != tt.staff {
			t.Errorf("Staff() for %s = %v, want %v", tt.role, got, tt.staff)
		}
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := NewContextWithRequestID(context.Background(), "req-123")
	if got := RequestIDFromContext(ctx); got != "req-123" {
		t.Errorf("RequestIDFromContext() = %q, want %q", got, "req-123")
	}

	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("RequestIDFromContext() on empty context = %q, want empty", got)
	}
}
