package middleware

import (
	"context"
	"net/http"

	"collabnotes/internal/auth"
	"collabnotes/internal/models"
	"collabnotes/internal/utils"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const principalKey contextKey = "principal"

// PrincipalVerifier resolves a bearer token.
type PrincipalVerifier interface {
	Verify(ctx context.Context, credential string) (auth.Principal, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// verified principal in the request context.
func RequireAuth(verifier PrincipalVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := utils.ExtractBearer(r)
			if err != nil {
				utils.JSONError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			p, err := verifier.Verify(r.Context(), token)
			if err != nil {
				utils.JSONError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal returns the principal stored by RequireAuth.
func GetPrincipal(r *http.Request) (auth.Principal, bool) {
	p, ok := r.Context().Value(principalKey).(auth.Principal)
	return p, ok
}

// GetIdentity is GetPrincipal for handlers that only need the user.
func GetIdentity(r *http.Request) (models.Identity, bool) {
	p, ok := GetPrincipal(r)
	return p.Identity, ok
}

// WithPrincipal stores p in ctx. Used by tests that bypass RequireAuth.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}
