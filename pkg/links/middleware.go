// Package links exposes read access to cross-chain links over HTTP.
package links

import (
	"context"
	"net/http"
	"strings"

	"github.com/chainscope/bridge-sentinel/pkg/app/errors"
	apphttp "github.com/chainscope/bridge-sentinel/pkg/app/http"
	"github.com/chainscope/bridge-sentinel/pkg/auth"
)

// Verifier is the access control surface the middleware consults.
type Verifier interface {
	VerifyCredential(ctx context.Context, credential string) (*auth.Identity, error)
	Allow(ctx context.Context, identifier, action string) (bool, error)
}

// Authenticate verifies the bearer credential, applies the rate limit and
// stores the resolved identity on the request context.
func Authenticate(gate Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := bearerCredential(r)
			if credential == "" {
				apphttp.DefaultErrorHandler(w, errors.Unauthorized("missing credential"))
				return
			}

			identity, err := gate.VerifyCredential(r.Context(), credential)
			if err != nil {
				apphttp.DefaultErrorHandler(w, errors.Unauthorized("invalid credential"))
				return
			}

			allowed, err := gate.Allow(r.Context(), identity.UserID, r.Method+" "+r.URL.Path)
			if err != nil {
				apphttp.DefaultErrorHandler(w, errors.GeneralError(err))
				return
			}
			if !allowed {
				apphttp.DefaultErrorHandler(w, errors.RateLimited("request ceiling exceeded"))
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

func bearerCredential(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

// requirePermission resolves the request identity and checks one
// permission.
func requirePermission(r *http.Request, p auth.Permission) (*auth.Identity, error) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil, errors.Unauthorized("missing credential")
	}
	if !identity.HasPermission(p) {
		return nil, errors.Forbidden("permission denied")
	}
	return identity, nil
}
