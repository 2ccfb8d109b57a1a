package auth

import (
	"context"
	"slices"

	"github.com/google/uuid"
)

// Identity is the authenticated caller taken from a verified JWT.
// It is added to the request context and never persisted.
type Identity struct {
	ID     uuid.UUID `json:"id"`
	Email  string    `json:"email"`
	Scopes []string  `json:"scopes,omitempty"`
}

// HasScope reports whether the identity was granted scope.
func (i Identity) HasScope(scope string) bool {
	return slices.Contains(i.Scopes, scope)
}

type contextKey int

const (
	identityContextKey contextKey = iota
)

// WithIdentity returns a copy of ctx carrying the caller identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext extracts the caller identity from the request context.
// The boolean is false for unauthenticated requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}
