// Package middleware carries the HTTP cross-cutting concerns of the
// import server: bearer-token auth and CORS.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthMiddleware validates a static bearer token. The server is meant
// to sit behind one operator or one trusted frontend, so a single
// pre-shared token is the whole auth model.
type AuthMiddleware struct {
	token string
}

// NewAuthMiddleware creates an auth middleware for the given token. An
// empty token disables authentication entirely.
func NewAuthMiddleware(token string) *AuthMiddleware {
	return &AuthMiddleware{token: token}
}

// RequireAuth middleware that requires authentication
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing authorization header", http.StatusUnauthorized)
			return
		}

		// Expected format: "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(m.token)) != 1 {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
