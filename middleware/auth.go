package middleware

import (
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"
)

// Auth requires a Bearer token on every path except public ones.
// The WebSocket endpoint authenticates with its first RPC instead.
func Auth(token string, public ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(public, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			scheme, credential, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok {
				if scheme == "" {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				} else {
					http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				}
				return
			}
			if scheme != "Bearer" {
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(credential), []byte(token)) != 1 {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
