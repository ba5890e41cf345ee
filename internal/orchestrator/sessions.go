package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"simplane/internal/access"
	"simplane/internal/lifecycle"
	"simplane/internal/store"
	"simplane/pkg/api"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// CreateSessionInput describes a new session.
type CreateSessionInput struct {
	DesignID      uuid.UUID
	Name          string
	Description   *string
	Configuration store.Document
}

func (in CreateSessionInput) validate() error {
	if in.DesignID == uuid.Nil {
		return invalid("design_id", "is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name", "is required")
	}
	return nil
}

// SessionDetails is a session together with its recorded history.
type SessionDetails struct {
	Session store.Session
	Events  []store.Event
	Metrics []store.Metric
	Faults  []store.Fault
}

// CreateSession creates a session in status created, owned by subject.
func (s *Service) CreateSession(ctx context.Context, subject access.Subject, in CreateSessionInput) (_ *store.Session, err error) {
	ctx, span := s.startSpan(ctx, "CreateSession", attribute.String("design.id", in.DesignID.String()))
	defer func() { endSpan(span, err) }()

	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.access.CheckDesignAccess(ctx, in.DesignID, subject); err != nil {
		return nil, err
	}

	now := s.now()
	session := &store.Session{
		ID:            uuid.New(),
		DesignID:      in.DesignID,
		Name:          in.Name,
		Description:   in.Description,
		Configuration: in.Configuration,
		Results:       store.Document{},
		Status:        lifecycle.StatusCreated,
		StartedBy:     subject.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if session.Configuration == nil {
		session.Configuration = store.Document{}
	}

	if err := s.store.CreateSession(ctx, nil, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// ListSessions lists the sessions of a design (access-checked) or, without a
// design, the sessions started by subject. Newest first.
func (s *Service) ListSessions(ctx context.Context, subject access.Subject, designID *uuid.UUID, page Page) (_ []store.Session, err error) {
	ctx, span := s.startSpan(ctx, "ListSessions")
	defer func() { endSpan(span, err) }()

	page, err = page.normalize(api.DefaultSessionLimit, api.MaxSessionLimit)
	if err != nil {
		return nil, err
	}

	filter := store.SessionFilter{Skip: page.Skip, Limit: page.Limit}
	if designID != nil {
		if err := s.access.CheckDesignAccess(ctx, *designID, subject); err != nil {
			return nil, err
		}
		filter.DesignID = designID
	} else {
		owner := subject.ID
		filter.StartedBy = &owner
	}

	sessions, err := s.store.ListSessions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// GetSession returns one session.
func (s *Service) GetSession(ctx context.Context, subject access.Subject, id uuid.UUID) (_ *store.Session, err error) {
	ctx, span := s.startSpan(ctx, "GetSession", attribute.String("session.id", id.String()))
	defer func() { endSpan(span, err) }()

	return s.authorize(ctx, subject, id)
}

// GetSessionDetails returns a session with the default windows of its
// events and metrics plus all of its faults.
func (s *Service) GetSessionDetails(ctx context.Context, subject access.Subject, id uuid.UUID) (_ *SessionDetails, err error) {
	ctx, span := s.startSpan(ctx, "GetSessionDetails", attribute.String("session.id", id.String()))
	defer func() { endSpan(span, err) }()

	session, err := s.authorize(ctx, subject, id)
	if err != nil {
		return nil, err
	}

	events, err := s.store.ListEvents(ctx, id, store.EventFilter{Limit: api.DefaultEventLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	metrics, err := s.store.ListMetrics(ctx, id, store.MetricFilter{Limit: api.DefaultMetricLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	faults, err := s.store.ListFaults(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list faults: %w", err)
	}

	return &SessionDetails{Session: *session, Events: events, Metrics: metrics, Faults: faults}, nil
}

// UpdateSession merges name, description and configuration. Status is not
// reachable from here.
func (s *Service) UpdateSession(ctx context.Context, subject access.Subject, id uuid.UUID, update store.SessionUpdate) (_ *store.Session, err error) {
	ctx, span := s.startSpan(ctx, "UpdateSession", attribute.String("session.id", id.String()))
	defer func() { endSpan(span, err) }()

	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, invalid("name", "must not be empty")
	}

	session, err := s.authorize(ctx, subject, id)
	if err != nil {
		return nil, err
	}
	if update.Empty() {
		return session, nil
	}

	updated, err := s.store.UpdateSession(ctx, id, update)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return updated, nil
}

// DeleteSession removes a session together with its events, metrics, faults
// and undelivered engine commands.
func (s *Service) DeleteSession(ctx context.Context, subject access.Subject, id uuid.UUID) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteSession", attribute.String("session.id", id.String()))
	defer func() { endSpan(span, err) }()

	if _, err := s.authorize(ctx, subject, id); err != nil {
		return err
	}

	found, err := s.store.DeleteSession(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if !found {
		return ErrSessionNotFound
	}
	return nil
}
