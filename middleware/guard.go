package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	authcore "github.com/medforge/authcore"
	"github.com/medforge/authcore/token"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the session claims injected by [Guard].
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*token.Claims)
	return claims, ok
}

// Guard verifies the Authorization bearer token and runs the wrapped
// handler with the validated claims, client IP, and user agent on the
// request context.
func Guard(service *authcore.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if service == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims := service.VerifyToken(raw)
			if claims == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			ctx = authcore.WithActorID(ctx, claims.AccountID)
			ctx = authcore.WithClientIP(ctx, clientIP(r))
			ctx = authcore.WithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	raw := value[len(bearer):]
	if raw == "" {
		return "", false
	}

	return raw, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
