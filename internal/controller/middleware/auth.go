package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"simplane/internal/access"
	"simplane/pkg/api"
)

// SubjectResolver turns a bearer token into a subject.
type SubjectResolver interface {
	ResolveSubject(ctx context.Context, token string) (access.Subject, error)
}

// Authenticate resolves the caller through the identity service and stores
// the subject in the request context. The token comes from the Authorization
// header or, for websocket clients that cannot set headers, the token query
// parameter.
func Authenticate(resolver SubjectResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, api.CodeUnauthorized, "Missing authorization header")
				return
			}

			subject, err := resolver.ResolveSubject(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, access.ErrUpstreamUnavailable):
				writeError(w, http.StatusBadGateway, api.CodeUpstreamUnavailable, "Identity service unavailable")
				return
			default:
				writeError(w, http.StatusUnauthorized, api.CodeUnauthorized, "Could not validate credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(access.WithSubject(r.Context(), subject)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		token, found := strings.CutPrefix(h, "Bearer ")
		if !found || token == "" || strings.Contains(token, " ") {
			return "", false
		}
		return token, true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}
