package auth

import (
	"context"
)

// Context keys for authentication data
type contextKey string

const (
	// ContextKeyIdentity is the context key for the verified identity
	ContextKeyIdentity contextKey = "identity"
)

// WithIdentity adds the verified identity to the context
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, id)
}

// IdentityFromContext retrieves the verified identity from the context
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(ContextKeyIdentity).(*Identity)
	return id, ok
}
