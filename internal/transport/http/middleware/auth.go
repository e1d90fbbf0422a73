package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/bcbuzz/api/internal/domain"
	jwtinfra "github.com/bcbuzz/api/internal/infrastructure/jwt"
)

type contextKey string

const (
	// ClaimsKey holds the verified *jwtinfra.Claims in the request context.
	ClaimsKey contextKey = "claims"
	// IdentityKey holds the resolved *domain.Identity in the request context.
	IdentityKey contextKey = "identity"
)

// TokenCookieName is the session cookie set by the verify-otp step.
const TokenCookieName = "token"

// IdentityFinder resolves a (role, id) claim pair back to a live identity.
type IdentityFinder interface {
	FindIdentity(ctx context.Context, role string, identityID int64) (*domain.Identity, error)
}

// Auth returns middleware that validates the request token and injects claims
// and identity into the context. The token is read from the Authorization
// header or, failing that, from the session cookie. A syntactically valid
// token is still rejected when its identity no longer exists or has not
// completed email verification.
func Auth(provider *jwtinfra.Provider, identities IdentityFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			claims, err := provider.Verify(tokenStr)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			ident, err := identities.FindIdentity(r.Context(), claims.Role, claims.UserID)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "account no longer exists")
				return
			}
			if !ident.EmailVerified {
				writeJSONError(w, http.StatusUnauthorized, "account is not verified")
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			ctx = context.WithValue(ctx, IdentityKey, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header or the
// session cookie, in that order.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(TokenCookieName); err == nil {
		return c.Value
	}
	return ""
}

// ClaimsFromContext extracts JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*jwtinfra.Claims)
	return c, ok
}

// IdentityFromContext extracts the resolved identity from the request context.
func IdentityFromContext(ctx context.Context) (*domain.Identity, bool) {
	i, ok := ctx.Value(IdentityKey).(*domain.Identity)
	return i, ok
}
