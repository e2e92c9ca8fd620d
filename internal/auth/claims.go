// Package auth validates bearer tokens issued by the identity service and
// carries the resulting claims through request contexts.
package auth

import (
	"context"
	"time"
)

// Known OAuth scopes for the session endpoints.
const (
	ScopeSessionsWrite = "sessions:write"
	ScopeSessionsRead  = "sessions:read"
)

// Claims is the normalized payload of a validated token.
type Claims struct {
	Subject   string
	TenantID  string
	Scopes    map[string]struct{}
	ExpiresAt time.Time
}

// HasScope reports whether the claim set includes the provided scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}

// CanRead reports whether the claims allow reading sessions and analytics.
// Write access implies read access.
func (c *Claims) CanRead() bool {
	return c.HasScope(ScopeSessionsRead) || c.HasScope(ScopeSessionsWrite)
}

type contextKey string

const claimsKey contextKey = "swimrun-auth-claims"

// WithClaims stores claims on the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// FromContext retrieves claims stored by WithClaims.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}
