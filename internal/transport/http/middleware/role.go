package middleware

import (
	"net/http"

	"github.com/bcbuzz/api/internal/domain"
)

// RequireRole returns middleware that allows access only to requests whose
// token role matches one of the provided role names. The client alias is
// normalized before comparison, so `client` tokens pass a `user` gate.
func RequireRole(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			got := domain.NormalizeRole(claims.Role)
			for _, role := range allowedRoles {
				if got == domain.NormalizeRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSONError(w, http.StatusForbidden, "forbidden")
		})
	}
}
