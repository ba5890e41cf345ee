// Package access talks to the identity and design services that decide who a
// caller is and whether they may touch a design.
package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"simplane/internal/observability"

	"github.com/google/uuid"
)

var (
	// ErrUnauthorized means the token could not be resolved to a subject.
	ErrUnauthorized = errors.New("could not validate credentials")
	// ErrForbidden means the subject may not access the design.
	ErrForbidden = errors.New("access to design denied")
	// ErrDesignNotFound means the design service does not know the design.
	ErrDesignNotFound = errors.New("design not found")
	// ErrUpstreamUnavailable means a collaborator timed out, refused the
	// connection or answered with a server error. Nothing was mutated locally.
	ErrUpstreamUnavailable = errors.New("access collaborator unavailable")
)

// DefaultTimeout bounds one collaborator round trip.
const DefaultTimeout = 5 * time.Second

// Subject is an authenticated caller. The token is kept so that downstream
// checks can be made on the caller's behalf.
type Subject struct {
	ID    uuid.UUID
	Token string
}

// Checker resolves callers and checks their access to designs.
type Checker interface {
	ResolveSubject(ctx context.Context, token string) (Subject, error)
	CheckDesignAccess(ctx context.Context, designID uuid.UUID, subject Subject) error
}

type subjectKey struct{}

// WithSubject stores the authenticated subject in ctx.
func WithSubject(ctx context.Context, s Subject) context.Context {
	return context.WithValue(ctx, subjectKey{}, s)
}

// SubjectFromContext returns the subject stored by WithSubject.
func SubjectFromContext(ctx context.Context) (Subject, bool) {
	s, ok := ctx.Value(subjectKey{}).(Subject)
	return s, ok
}

// Client implements Checker over HTTP.
type Client struct {
	UserServiceURL   string
	DesignServiceURL string
	HTTPClient       *http.Client
}

// NewClient creates a client. A non-positive timeout uses DefaultTimeout.
func NewClient(userServiceURL, designServiceURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		UserServiceURL:   strings.TrimRight(userServiceURL, "/"),
		DesignServiceURL: strings.TrimRight(designServiceURL, "/"),
		HTTPClient:       &http.Client{Timeout: timeout},
	}
}

type userResponse struct {
	ID string `json:"id"`
}

// ResolveSubject sends GET /api/v1/users/me with the caller's bearer token.
func (c *Client) ResolveSubject(ctx context.Context, token string) (Subject, error) {
	if token == "" {
		return Subject{}, ErrUnauthorized
	}

	resp, err := c.get(ctx, c.UserServiceURL+"/api/v1/users/me", token)
	if err != nil {
		return Subject{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return Subject{}, fmt.Errorf("%w: user service returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	default:
		return Subject{}, ErrUnauthorized
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return Subject{}, fmt.Errorf("%w: invalid user response: %v", ErrUpstreamUnavailable, err)
	}
	id, err := uuid.Parse(user.ID)
	if err != nil {
		return Subject{}, fmt.Errorf("%w: invalid user id %q", ErrUpstreamUnavailable, user.ID)
	}

	return Subject{ID: id, Token: token}, nil
}

// CheckDesignAccess sends GET /api/v1/designs/{id} on the subject's behalf.
// The design service applies its own project role rules.
func (c *Client) CheckDesignAccess(ctx context.Context, designID uuid.UUID, subject Subject) error {
	resp, err := c.get(ctx, fmt.Sprintf("%s/api/v1/designs/%s", c.DesignServiceURL, designID), subject.Token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case resp.StatusCode == http.StatusNotFound:
		return ErrDesignNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: design service returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: design service returned %d", ErrForbidden, resp.StatusCode)
	}
}

func (c *Client) get(ctx context.Context, url, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	observability.InjectHeaders(ctx, req.Header)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return resp, nil
}
