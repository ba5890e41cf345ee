package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"simplane/internal/access"
	"simplane/internal/broadcast"
	"simplane/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// FaultInput describes a fault to schedule.
type FaultInput struct {
	FaultType       string
	TargetComponent string
	Parameters      store.Document
	StartTime       float64
	Duration        *float64
}

func (in FaultInput) validate() error {
	if strings.TrimSpace(in.FaultType) == "" {
		return invalid("fault_type", "is required")
	}
	if strings.TrimSpace(in.TargetComponent) == "" {
		return invalid("target_component", "is required")
	}
	if math.IsNaN(in.StartTime) || math.IsInf(in.StartTime, 0) || in.StartTime < 0 {
		return invalid("start_time", "must be a non-negative number")
	}
	if in.Duration != nil && (math.IsNaN(*in.Duration) || math.IsInf(*in.Duration, 0) || *in.Duration <= 0) {
		return invalid("duration", "must be a positive number")
	}
	return nil
}

// ScheduleFault stores a fault in status scheduled and queues it for the
// runtime. Scheduling is allowed in every session status, including before
// the first start.
func (s *Service) ScheduleFault(ctx context.Context, subject access.Subject, sessionID uuid.UUID, in FaultInput) (_ *store.Fault, err error) {
	ctx, span := s.startSpan(ctx, "ScheduleFault", attribute.String("session.id", sessionID.String()))
	defer func() { endSpan(span, err) }()

	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, subject, sessionID); err != nil {
		return nil, err
	}

	fault := &store.Fault{
		ID:              uuid.New(),
		SessionID:       sessionID,
		FaultType:       in.FaultType,
		TargetComponent: in.TargetComponent,
		Parameters:      in.Parameters,
		StartTime:       in.StartTime,
		Duration:        in.Duration,
		Status:          store.FaultStatusScheduled,
		CreatedAt:       s.now(),
	}
	if fault.Parameters == nil {
		fault.Parameters = store.Document{}
	}

	err = s.withTx(ctx, func(tx store.Tx) error {
		if err := s.store.ScheduleFault(ctx, tx, fault); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, sessionID, store.CommandScheduleFault, FaultView(*fault))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule fault: %w", err)
	}

	s.publish(ctx, broadcast.TypeFaultScheduled, sessionID, FaultView(*fault))
	return fault, nil
}

// ListFaults returns a session's faults ordered by start time.
func (s *Service) ListFaults(ctx context.Context, subject access.Subject, sessionID uuid.UUID) (_ []store.Fault, err error) {
	ctx, span := s.startSpan(ctx, "ListFaults", attribute.String("session.id", sessionID.String()))
	defer func() { endSpan(span, err) }()

	if _, err := s.authorize(ctx, subject, sessionID); err != nil {
		return nil, err
	}

	faults, err := s.store.ListFaults(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list faults: %w", err)
	}
	return faults, nil
}

// UpdateFaultStatus records the runtime's progress on a fault. Any known
// status may follow any other.
func (s *Service) UpdateFaultStatus(ctx context.Context, faultID uuid.UUID, status store.FaultStatus) (_ *store.Fault, err error) {
	ctx, span := s.startSpan(ctx, "UpdateFaultStatus", attribute.String("fault.id", faultID.String()))
	defer func() { endSpan(span, err) }()

	if !status.Valid() {
		return nil, invalid("status", "must be one of scheduled, active, completed")
	}

	fault, err := s.store.UpdateFaultStatus(ctx, faultID, status)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrFaultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update fault status: %w", err)
	}

	s.publish(ctx, broadcast.TypeFaultUpdated, fault.SessionID, FaultView(*fault))
	return fault, nil
}

// DeleteFault removes a fault of the given session and tells the runtime to
// drop it.
func (s *Service) DeleteFault(ctx context.Context, subject access.Subject, sessionID, faultID uuid.UUID) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteFault",
		attribute.String("session.id", sessionID.String()),
		attribute.String("fault.id", faultID.String()),
	)
	defer func() { endSpan(span, err) }()

	if _, err := s.authorize(ctx, subject, sessionID); err != nil {
		return err
	}

	fault, err := s.store.GetFault(ctx, faultID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && fault.SessionID != sessionID) {
		return ErrFaultNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load fault: %w", err)
	}

	var found bool
	err = s.withTx(ctx, func(tx store.Tx) error {
		var err error
		if found, err = s.store.DeleteFault(ctx, tx, faultID); err != nil || !found {
			return err
		}
		return s.enqueue(ctx, tx, sessionID, store.CommandCancelFault, map[string]any{"fault_id": faultID})
	})
	if err != nil {
		return fmt.Errorf("failed to delete fault: %w", err)
	}
	if !found {
		return ErrFaultNotFound
	}
	return nil
}
