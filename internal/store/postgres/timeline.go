package postgres

import (
	"context"

	"simplane/internal/store"

	"github.com/google/uuid"
)

// AppendEvent inserts an immutable event row.
func (s *Store) AppendEvent(ctx context.Context, event *store.Event) error {
	query := `
		INSERT INTO simulation_events (id, session_id, event_type, component_id, sim_time, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.SessionID,
		event.EventType,
		event.ComponentID,
		event.Timestamp,
		event.Data,
		event.CreatedAt,
	)
	return err
}

// ListEvents orders by simulation time, not by arrival.
func (s *Store) ListEvents(ctx context.Context, sessionID uuid.UUID, filter store.EventFilter) ([]store.Event, error) {
	query := `
		SELECT id, session_id, event_type, component_id, sim_time, data, created_at
		FROM simulation_events
		WHERE session_id = $1 AND ($2 = '' OR component_id = $2)
		ORDER BY sim_time ASC, created_at ASC
		OFFSET $3 LIMIT $4
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID, filter.ComponentID, filter.Skip, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []store.Event{}
	for rows.Next() {
		var e store.Event
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &e.ComponentID, &e.Timestamp, &e.Data, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// AppendMetric inserts an immutable metric sample.
func (s *Store) AppendMetric(ctx context.Context, metric *store.Metric) error {
	query := `
		INSERT INTO simulation_metrics (id, session_id, metric_name, component_id, sim_time, value, unit, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		metric.ID,
		metric.SessionID,
		metric.MetricName,
		metric.ComponentID,
		metric.Timestamp,
		metric.Value,
		metric.Unit,
		metric.Tags,
		metric.CreatedAt,
	)
	return err
}

func (s *Store) ListMetrics(ctx context.Context, sessionID uuid.UUID, filter store.MetricFilter) ([]store.Metric, error) {
	query := `
		SELECT id, session_id, metric_name, component_id, sim_time, value, unit, tags, created_at
		FROM simulation_metrics
		WHERE session_id = $1
			AND ($2 = '' OR component_id = $2)
			AND ($3 = '' OR metric_name = $3)
		ORDER BY sim_time ASC, created_at ASC
		OFFSET $4 LIMIT $5
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID, filter.ComponentID, filter.MetricName, filter.Skip, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metrics := []store.Metric{}
	for rows.Next() {
		var m store.Metric
		if err := rows.Scan(&m.ID, &m.SessionID, &m.MetricName, &m.ComponentID, &m.Timestamp, &m.Value, &m.Unit, &m.Tags, &m.CreatedAt); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}

	return metrics, rows.Err()
}
