package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"simplane/internal/access"

	"github.com/google/uuid"
)

type mockResolver struct {
	subject   access.Subject
	err       error
	gotTokens []string
}

func (m *mockResolver) ResolveSubject(ctx context.Context, token string) (access.Subject, error) {
	m.gotTokens = append(m.gotTokens, token)
	if m.err != nil {
		return access.Subject{}, m.err
	}
	s := m.subject
	s.Token = token
	return s, nil
}

func TestAuthenticate(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name           string
		header         string
		query          string
		resolverErr    error
		expectedStatus int
		expectedToken  string
	}{
		{"Bearer header", "Bearer tok-1", "", nil, http.StatusOK, "tok-1"},
		{"Query token for websocket clients", "", "?token=tok-2", nil, http.StatusOK, "tok-2"},
		{"Missing token", "", "", nil, http.StatusUnauthorized, ""},
		{"Wrong scheme", "Basic abc", "", nil, http.StatusUnauthorized, ""},
		{"Rejected token", "Bearer bad", "", access.ErrUnauthorized, http.StatusUnauthorized, "bad"},
		{"Identity service down", "Bearer tok", "", access.ErrUpstreamUnavailable, http.StatusBadGateway, "tok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &mockResolver{subject: access.Subject{ID: userID}, err: tt.resolverErr}

			var got access.Subject
			handler := Authenticate(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = access.SubjectFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/simulations"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("got status %d, want %d", rr.Code, tt.expectedStatus)
			}
			if tt.expectedToken != "" && (len(resolver.gotTokens) != 1 || resolver.gotTokens[0] != tt.expectedToken) {
				t.Errorf("resolver got tokens %v, want [%s]", resolver.gotTokens, tt.expectedToken)
			}
			if tt.expectedStatus == http.StatusOK && got.ID != userID {
				t.Errorf("subject in context = %v, want %v", got.ID, userID)
			}
		})
	}
}
