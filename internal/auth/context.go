// Package auth provides API key and JWT credentials for user authentication.
package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/tkohara/ragchat/internal/errdefs"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const identityContextKey contextKey = "identity"

// Identity holds the authenticated caller extracted by the server's
// auth middleware.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Name   string
	Tier   string
}

// WithIdentity returns a context carrying the authenticated caller.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext extracts the caller from context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	return id, ok
}

// RequireIdentity extracts the caller or fails with an unauthorized
// error. Handlers behind the auth middleware can rely on it.
func RequireIdentity(ctx context.Context) (*Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, errdefs.E(errdefs.Unauthorized, errdefs.CodeUnauthorized, "authentication required")
	}
	return id, nil
}
