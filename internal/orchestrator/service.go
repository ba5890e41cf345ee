// Package orchestrator is the façade over the session, timeline and fault
// stores. Every session-scoped call resolves the session, checks the caller's
// access to its design, delegates to the store and the state machine, and
// finally pushes the change to live subscribers.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"simplane/internal/access"
	"simplane/internal/broadcast"
	"simplane/internal/lifecycle"
	"simplane/internal/logger"
	"simplane/internal/observability"
	"simplane/internal/store"
	"simplane/pkg/api"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrSessionNotFound is returned when the addressed session does not exist.
	ErrSessionNotFound = errors.New("simulation session not found")
	// ErrFaultNotFound is returned when the addressed fault does not exist.
	ErrFaultNotFound = errors.New("fault injection not found")
)

// ValidationError reports malformed input. It is raised before any store access.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Store is everything the service needs from persistence.
type Store interface {
	store.SessionStore
	store.TimelineStore
	store.FaultStore
	store.Outbox
	BeginTx(ctx context.Context) (store.Tx, error)
}

// Publisher pushes messages to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, msg broadcast.Message) int
}

// Service implements the orchestration operations.
type Service struct {
	store  Store
	access access.Checker
	live   Publisher
	logger *slog.Logger
	now    func() time.Time

	tracer      trace.Tracer
	transitions metric.Int64Counter
	ingested    metric.Int64Counter
}

// New creates a Service. live may be nil when nobody subscribes.
func New(st Store, checker access.Checker, live Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		store:  st,
		access: checker,
		live:   live,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
		tracer: otel.Tracer("simplane/orchestrator"),
	}

	meter := otel.Meter("simplane/orchestrator")
	var err error
	if s.transitions, err = meter.Int64Counter("simplane.session.transitions",
		metric.WithDescription("Successful session status transitions")); err != nil {
		log.Warn("failed to create transitions counter", "error", err)
	}
	if s.ingested, err = meter.Int64Counter("simplane.timeline.ingested",
		metric.WithDescription("Events and metrics appended to session timelines")); err != nil {
		log.Warn("failed to create ingestion counter", "error", err)
	}

	return s
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "orchestrator."+name, trace.WithAttributes(attrs...))
}

// endSpan records unexpected failures. Caller errors (not found, denied,
// invalid input) are part of normal operation and leave the span status unset.
func endSpan(span trace.Span, err error) {
	if err != nil && !isCallerError(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func isCallerError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrFaultNotFound) ||
		errors.Is(err, access.ErrUnauthorized) ||
		errors.Is(err, access.ErrForbidden) ||
		errors.Is(err, access.ErrDesignNotFound) ||
		errors.Is(err, lifecycle.ErrInvalidTransition)
}

// resolve loads a session or returns ErrSessionNotFound.
func (s *Service) resolve(ctx context.Context, id uuid.UUID) (*store.Session, error) {
	session, err := s.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return session, nil
}

// authorize resolves the session and checks the subject's access to its design.
func (s *Service) authorize(ctx context.Context, subject access.Subject, id uuid.UUID) (*store.Session, error) {
	session, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CheckDesignAccess(ctx, session.DesignID, subject); err != nil {
		return nil, err
	}
	return session, nil
}

// withTx runs fn inside a transaction and commits it.
func (s *Service) withTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// enqueue writes an engine command in the caller's transaction. The trace
// context travels with it so the dispatcher's span joins this request.
func (s *Service) enqueue(ctx context.Context, tx store.DBTransaction, sessionID uuid.UUID, kind string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s command: %w", kind, err)
	}
	payload, err := json.Marshal(api.EngineCommandPayload{
		Data:  raw,
		Trace: observability.Carrier(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s command: %w", kind, err)
	}

	_, err = s.store.Enqueue(ctx, tx, &store.EngineCommand{
		SessionID: sessionID,
		Kind:      kind,
		Payload:   payload,
	})
	return err
}

// publish is fire-and-forget; delivery problems never reach the caller.
func (s *Service) publish(ctx context.Context, typ broadcast.MessageType, sessionID uuid.UUID, payload any) {
	if s.live == nil {
		return
	}
	// The write is committed; the caller going away must not cut viewers off.
	n := s.live.Publish(context.WithoutCancel(ctx), broadcast.Message{Type: typ, SessionID: sessionID, Payload: payload})
	logger.FromContext(ctx, s.logger).Debug("broadcast", "type", typ, "session_id", sessionID, "delivered", n)
}

// Page is a skip/limit window. A zero Limit selects the default window.
type Page struct {
	Skip  int
	Limit int
}

func (p Page) normalize(def, max int) (Page, error) {
	if p.Skip < 0 {
		return p, invalid("skip", "must be greater than or equal to 0")
	}
	if p.Limit == 0 {
		p.Limit = def
	}
	if p.Limit < 1 || p.Limit > max {
		return p, invalid("limit", "must be between 1 and %d", max)
	}
	return p, nil
}
