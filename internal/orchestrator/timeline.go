package orchestrator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"simplane/internal/access"
	"simplane/internal/broadcast"
	"simplane/internal/store"
	"simplane/pkg/api"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EventInput is one event posted by the simulation runtime.
type EventInput struct {
	EventType   string
	ComponentID *string
	Timestamp   float64
	Data        store.Document
}

func (in EventInput) validate() error {
	if strings.TrimSpace(in.EventType) == "" {
		return invalid("event_type", "is required")
	}
	if math.IsNaN(in.Timestamp) || math.IsInf(in.Timestamp, 0) {
		return invalid("timestamp", "must be a finite number")
	}
	return nil
}

// MetricInput is one metric sample posted by the simulation runtime.
type MetricInput struct {
	MetricName  string
	ComponentID *string
	Timestamp   float64
	Value       float64
	Unit        *string
	Tags        store.Document
}

func (in MetricInput) validate() error {
	if strings.TrimSpace(in.MetricName) == "" {
		return invalid("metric_name", "is required")
	}
	if math.IsNaN(in.Timestamp) || math.IsInf(in.Timestamp, 0) {
		return invalid("timestamp", "must be a finite number")
	}
	if math.IsNaN(in.Value) || math.IsInf(in.Value, 0) {
		return invalid("value", "must be a finite number")
	}
	return nil
}

// AppendEvent records an event. The session must exist; the caller is the
// trusted runtime, so no design access check is made.
func (s *Service) AppendEvent(ctx context.Context, sessionID uuid.UUID, in EventInput) (_ *store.Event, err error) {
	ctx, span := s.startSpan(ctx, "AppendEvent", attribute.String("session.id", sessionID.String()))
	defer func() { endSpan(span, err) }()

	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.resolve(ctx, sessionID); err != nil {
		return nil, err
	}

	event := &store.Event{
		ID:          uuid.New(),
		SessionID:   sessionID,
		EventType:   in.EventType,
		ComponentID: in.ComponentID,
		Timestamp:   in.Timestamp,
		Data:        in.Data,
		CreatedAt:   s.now(),
	}
	if event.Data == nil {
		event.Data = store.Document{}
	}

	if err := s.store.AppendEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}
	s.countIngested(ctx, "event")

	s.publish(ctx, broadcast.TypeSimulationEvent, sessionID, EventView(*event))
	return event, nil
}

// ListEvents returns a session's events ordered by simulation timestamp.
func (s *Service) ListEvents(ctx context.Context, subject access.Subject, sessionID uuid.UUID, componentID string, page Page) (_ []store.Event, err error) {
	ctx, span := s.startSpan(ctx, "ListEvents", attribute.String("session.id", sessionID.String()))
	defer func() { endSpan(span, err) }()

	page, err = page.normalize(api.DefaultEventLimit, api.MaxEventLimit)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, subject, sessionID); err != nil {
		return nil, err
	}

	events, err := s.store.ListEvents(ctx, sessionID, store.EventFilter{
		ComponentID: componentID,
		Skip:        page.Skip,
		Limit:       page.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// AppendMetric records a metric sample. Like AppendEvent it skips the access check.
func (s *Service) AppendMetric(ctx context.Context, sessionID uuid.UUID, in MetricInput) (_ *store.Metric, err error) {
	ctx, span := s.startSpan(ctx, "AppendMetric", attribute.String("session.id", sessionID.String()))
	defer func() { endSpan(span, err) }()

	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.resolve(ctx, sessionID); err != nil {
		return nil, err
	}

	m := &store.Metric{
		ID:          uuid.New(),
		SessionID:   sessionID,
		MetricName:  in.MetricName,
		ComponentID: in.ComponentID,
		Timestamp:   in.Timestamp,
		Value:       in.Value,
		Unit:        in.Unit,
		Tags:        in.Tags,
		CreatedAt:   s.now(),
	}
	if m.Tags == nil {
		m.Tags = store.Document{}
	}

	if err := s.store.AppendMetric(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to append metric: %w", err)
	}
	s.countIngested(ctx, "metric")

	s.publish(ctx, broadcast.TypeSimulationMetric, sessionID, MetricView(*m))
	return m, nil
}

// ListMetrics returns a session's metrics ordered by simulation timestamp,
// optionally narrowed to one component and/or one metric name.
func (s *Service) ListMetrics(ctx context.Context, subject access.Subject, sessionID uuid.UUID, componentID, metricName string, page Page) (_ []store.Metric, err error) {
	ctx, span := s.startSpan(ctx, "ListMetrics", attribute.String("session.id", sessionID.String()))
	defer func() { endSpan(span, err) }()

	page, err = page.normalize(api.DefaultMetricLimit, api.MaxMetricLimit)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, subject, sessionID); err != nil {
		return nil, err
	}

	metrics, err := s.store.ListMetrics(ctx, sessionID, store.MetricFilter{
		ComponentID: componentID,
		MetricName:  metricName,
		Skip:        page.Skip,
		Limit:       page.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	return metrics, nil
}

func (s *Service) countIngested(ctx context.Context, kind string) {
	if s.ingested != nil {
		s.ingested.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}
