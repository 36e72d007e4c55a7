package middleware

import (
	"net/http"

	authcore "github.com/medforge/authcore"
	"github.com/medforge/authcore/account"
)

// RequireRole wraps [Guard] and additionally rejects callers whose role
// is not in the allowed set.
func RequireRole(service *authcore.Service, allowed ...account.Role) func(http.Handler) http.Handler {
	roles := make(map[account.Role]struct{}, len(allowed))
	for _, r := range allowed {
		roles[r] = struct{}{}
	}

	guard := Guard(service)

	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if _, ok := roles[account.Role(claims.Role)]; !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
