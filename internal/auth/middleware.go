// internal/auth/middleware.go
package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const operatorKey contextKey = "operator"

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}

		claims, err := a.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), operatorKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OperatorFrom extracts the authenticated operator from the context
func OperatorFrom(ctx context.Context) string {
	if val, ok := ctx.Value(operatorKey).(string); ok {
		return val
	}
	return ""
}
