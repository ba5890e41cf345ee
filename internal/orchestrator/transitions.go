package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"simplane/internal/access"
	"simplane/internal/broadcast"
	"simplane/internal/lifecycle"
	"simplane/internal/logger"
	"simplane/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// maxTransitionAttempts bounds re-reads after losing a status race.
const maxTransitionAttempts = 3

type operationInfo struct {
	command string
	message broadcast.MessageType
}

var operations = map[lifecycle.Operation]operationInfo{
	lifecycle.OpStart:  {store.CommandStart, broadcast.TypeSimulationStarted},
	lifecycle.OpPause:  {store.CommandPause, broadcast.TypeSimulationPaused},
	lifecycle.OpResume: {store.CommandResume, broadcast.TypeSimulationResumed},
	lifecycle.OpStop:   {store.CommandStop, broadcast.TypeSimulationStopped},
	lifecycle.OpFail:   {store.CommandFail, broadcast.TypeSimulationFailed},
}

// StartSession moves a created or paused session to running. started_at is
// only set on the first start.
func (s *Service) StartSession(ctx context.Context, subject access.Subject, id uuid.UUID) (*store.Session, error) {
	return s.userTransition(ctx, subject, id, lifecycle.OpStart, nil)
}

// PauseSession moves a running session to paused.
func (s *Service) PauseSession(ctx context.Context, subject access.Subject, id uuid.UUID) (*store.Session, error) {
	return s.userTransition(ctx, subject, id, lifecycle.OpPause, nil)
}

// ResumeSession moves a paused session back to running.
func (s *Service) ResumeSession(ctx context.Context, subject access.Subject, id uuid.UUID) (*store.Session, error) {
	return s.userTransition(ctx, subject, id, lifecycle.OpResume, nil)
}

// StopSession completes a running session. results, when non-nil, replaces
// the results document.
func (s *Service) StopSession(ctx context.Context, subject access.Subject, id uuid.UUID, results store.Document) (*store.Session, error) {
	return s.userTransition(ctx, subject, id, lifecycle.OpStop, results)
}

// ReportFailure marks a running or paused session failed. It is called by
// the simulation runtime and is not access-checked. A non-empty reason is
// stored under "error" in the results document.
func (s *Service) ReportFailure(ctx context.Context, id uuid.UUID, reason string, results store.Document) (_ *store.Session, err error) {
	ctx, span := s.startSpan(ctx, "ReportFailure", attribute.String("session.id", id.String()))
	defer func() { endSpan(span, err) }()

	session, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	if reason != "" {
		merged := store.Document{}
		for k, v := range results {
			merged[k] = v
		}
		merged["error"] = reason
		results = merged
	}

	return s.transition(ctx, session, lifecycle.OpFail, results)
}

func (s *Service) userTransition(ctx context.Context, subject access.Subject, id uuid.UUID, op lifecycle.Operation, results store.Document) (_ *store.Session, err error) {
	ctx, span := s.startSpan(ctx, "Transition",
		attribute.String("session.id", id.String()),
		attribute.String("operation", string(op)),
	)
	defer func() { endSpan(span, err) }()

	session, err := s.authorize(ctx, subject, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, session, op, results)
}

// transition applies op with a compare-and-set on status, queues the engine
// command in the same transaction and broadcasts after commit. When another
// request changed the status first, the session is re-read and op is
// re-validated against the fresh status.
func (s *Service) transition(ctx context.Context, session *store.Session, op lifecycle.Operation, results store.Document) (*store.Session, error) {
	info := operations[op]
	id := session.ID

	for attempt := 0; ; attempt++ {
		effect, err := lifecycle.Transition(session.Status, op)
		if err != nil {
			return nil, err
		}

		var updated *store.Session
		err = s.withTx(ctx, func(tx store.Tx) error {
			var err error
			updated, err = s.store.TransitionSession(ctx, tx, id, store.Transition{
				Effect:  effect,
				Results: results,
				At:      s.now(),
			})
			if err != nil {
				return err
			}
			return s.enqueue(ctx, tx, id, info.command, commandData(updated, op))
		})

		if errors.Is(err, store.ErrStatusConflict) {
			if session, err = s.resolve(ctx, id); err != nil {
				return nil, err
			}
			if attempt+1 < maxTransitionAttempts {
				logger.FromContext(ctx, s.logger).Info("session status changed concurrently, retrying",
					"session_id", id, "operation", op, "status", session.Status)
				continue
			}
			return nil, &lifecycle.InvalidTransitionError{From: session.Status, Operation: op}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to %s session %s: %w", op, id, err)
		}

		if s.transitions != nil {
			s.transitions.Add(ctx, 1, metric.WithAttributes(
				attribute.String("operation", string(op)),
				attribute.String("to", string(updated.Status)),
			))
		}
		logger.FromContext(ctx, s.logger).Info("session transitioned",
			"session_id", id, "operation", op, "from", effect.From, "to", updated.Status)

		s.publish(ctx, info.message, id, SessionView(*updated))
		return updated, nil
	}
}

// commandData is what the simulation runtime receives for a transition.
func commandData(session *store.Session, op lifecycle.Operation) map[string]any {
	data := map[string]any{
		"design_id": session.DesignID,
		"status":    session.Status,
	}
	switch op {
	case lifecycle.OpStart:
		data["configuration"] = session.Configuration
	case lifecycle.OpStop, lifecycle.OpFail:
		data["results"] = session.Results
	}
	return data
}
