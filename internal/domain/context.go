// Package domain provides core business types, the coded error taxonomy,
// and request-context helpers for njord.
//
// Context helpers centralize request-scoped identity access so handlers
// and services share one way of asking "who is calling".
package domain

import (
	"context"
)

// Role is the caller's role as asserted by the upstream auth layer.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// Identity is the verified caller identity supplied by the external auth
// collaborator. This service never authenticates; it trusts what the
// gateway forwards.
type Identity struct {
	UserID string
	Role   Role
}

// Staff reports whether the identity may perform back-office actions.
func (id Identity) Staff() bool {
	return id.Role == RoleAdmin || id.Role == RoleManager
}

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const (
	// identityContextKey stores the caller identity in context.
	identityContextKey contextKey = iota

	// requestIDContextKey stores the request ID for tracing.
	requestIDContextKey
)

// --- Identity Context Helpers ---

// NewContextWithIdentity returns a new context with the identity attached.
func NewContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext retrieves the caller identity from context.
// The second return is false if no identity is present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}

// IsAuthenticated returns true if there is an identity in context.
func IsAuthenticated(ctx context.Context) bool {
	_, ok := IdentityFromContext(ctx)
	return ok
}

// --- Request ID Context Helpers ---

// NewContextWithRequestID returns a new context with the request ID attached.
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if no request ID is present.
func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDContextKey).(string)
	return requestID
}
