// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// This package defines context keys and getter/setter functions for values that are
// typically set by middleware but consumed by services. Keeping it free of net/http
// lets the audit service and writer read request metadata without importing transport code.
//
// Usage in services (read values):
//
//	actor := requestcontext.UserID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithIdentity(ctx, userID, role)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
package requestcontext

import (
	"context"
	"sync"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	userIDKey       struct{}
	userRoleKey     struct{}
	identitySlotKey struct{}
	clientIPKey     struct{}
	userAgentKey    struct{}
	requestIDKey    struct{}
	requestTimeKey  struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyUserID       = userIDKey{}
	ContextKeyUserRole     = userRoleKey{}
	ContextKeyIdentitySlot = identitySlotKey{}
	ContextKeyClientIP     = clientIPKey{}
	ContextKeyUserAgent    = userAgentKey{}
	ContextKeyRequestID    = requestIDKey{}
	ContextKeyRequestTime  = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Identity (actor and role), resolved upstream by the auth middleware
// -----------------------------------------------------------------------------

// UserID retrieves the authenticated actor (wallet address or system id).
// Returns "" when the request is unauthenticated.
func UserID(ctx context.Context) string {
	if userID, ok := ctx.Value(ContextKeyUserID).(string); ok {
		return userID
	}
	return ""
}

// UserRole retrieves the authenticated actor's role.
func UserRole(ctx context.Context) string {
	if role, ok := ctx.Value(ContextKeyUserRole).(string); ok {
		return role
	}
	return ""
}

// WithIdentity injects an authenticated actor and role into the context. It
// also fills the identity slot, if an outer middleware installed one.
func WithIdentity(ctx context.Context, userID, role string) context.Context {
	if slot, ok := ctx.Value(ContextKeyIdentitySlot).(*IdentitySlot); ok {
		slot.set(userID, role)
	}
	ctx = context.WithValue(ctx, ContextKeyUserID, userID)
	return context.WithValue(ctx, ContextKeyUserRole, role)
}

// IdentitySlot lets middleware that runs before authentication learn the
// identity resolved further down the chain once the handler has returned.
type IdentitySlot struct {
	mu     sync.Mutex
	userID string
	role   string
}

// WithIdentitySlot installs an empty slot that later WithIdentity calls fill.
func WithIdentitySlot(ctx context.Context) (context.Context, *IdentitySlot) {
	slot := &IdentitySlot{}
	return context.WithValue(ctx, ContextKeyIdentitySlot, slot), slot
}

func (s *IdentitySlot) set(userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID, s.role = userID, role
}

// Identity returns the recorded actor and role, or "" when nothing
// authenticated the request.
func (s *IdentitySlot) Identity() (string, string) {
	if s == nil {
		return "", ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.role
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that pin the aggregation window
//   - CLI commands that report against a fixed instant
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
