package auth

import (
	"context"
	"net/http"
	"strings"
)

// Context keys for principal information.
type contextKey string

const (
	principalContextKey contextKey = "principal"
)

// PrincipalFromContext retrieves the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	if !ok {
		return nil
	}

	return p
}

// ContextWithPrincipal adds a principal to the context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// RequireAPIKey creates middleware that rejects requests without a valid API
// key. With no keys configured every request is rejected.
func RequireAPIKey(authSvc Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" || !authSvc.Enabled() {
				writeUnauthorized(w)

				return
			}

			principal, err := authSvc.Authenticate(token)
			if err != nil {
				writeUnauthorized(w)

				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="ringer-docs"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
}

// extractToken extracts the bearer token from the request.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return r.Header.Get("X-API-Key")
	}

	// Support both "Bearer <token>" and "<token>" formats.
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return authHeader
}
