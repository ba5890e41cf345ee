package middleware

import (
	"net/http"
	"strings"

	"simplane/internal/auth"
	"simplane/pkg/api"
)

// RequireInternalAuth guards the routes used by the simulation runtime with a
// shared secret. An empty secret rejects every request.
func RequireInternalAuth(systemSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, api.CodeUnauthorized, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeError(w, http.StatusUnauthorized, api.CodeUnauthorized, "Invalid authorization header")
				return
			}

			if !auth.SecretMatches(parts[1], systemSecret) {
				writeError(w, http.StatusUnauthorized, api.CodeUnauthorized, "Invalid authorization token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
