package auth

import (
	"context"
	"fmt"
	"time"
)

// verifyTimeout bounds credential lookups so a slow store cannot stall a
// handshake.
const verifyTimeout = 5 * time.Second

// Limiter abstracts the rate limiter for callers and tests. A nil limiter
// on the gate disables rate limiting.
type Limiter interface {
	Allow(ctx context.Context, identifier, action string) (bool, error)
}

// Gate verifies both credential kinds and answers permission and rate
// limit questions for the notification hub and the REST surface.
type Gate struct {
	tokens  *TokenService
	keys    *APIKeyService
	limiter Limiter
}

func NewGate(tokens *TokenService, keys *APIKeyService, limiter Limiter) *Gate {
	return &Gate{tokens: tokens, keys: keys, limiter: limiter}
}

// VerifyCredential resolves a bearer credential of either kind: sentinel
// API keys by their prefix, anything else as a session token.
func (g *Gate) VerifyCredential(ctx context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, fmt.Errorf("missing credential")
	}

	if IsAPIKey(credential) {
		ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
		defer cancel()
		return g.keys.VerifyKey(ctx, credential)
	}
	return g.tokens.VerifyToken(credential)
}

// Allow consults the rate limiter for one (identifier, action) request.
func (g *Gate) Allow(ctx context.Context, identifier, action string) (bool, error) {
	if g.limiter == nil {
		return true, nil
	}
	return g.limiter.Allow(ctx, identifier, action)
}
