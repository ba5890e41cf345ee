package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"simplane/internal/store"

	"github.com/google/uuid"
)

const sessionColumns = `id, design_id, name, description, status, configuration, results,
		started_by, started_at, completed_at, created_at, updated_at`

func scanSession(row rowScanner) (*store.Session, error) {
	var s store.Session
	err := row.Scan(
		&s.ID, &s.DesignID, &s.Name, &s.Description, &s.Status,
		&s.Configuration, &s.Results, &s.StartedBy, &s.StartedAt,
		&s.CompletedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, tx store.DBTransaction, session *store.Session) error {
	query := `
		INSERT INTO simulation_sessions (id, design_id, name, description, status, configuration, results, started_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.getExecutor(tx).ExecContext(ctx, query,
		session.ID,
		session.DesignID,
		session.Name,
		session.Description,
		session.Status,
		session.Configuration,
		session.Results,
		session.StartedBy,
		session.CreatedAt,
		session.UpdatedAt,
	)
	return err
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*store.Session, error) {
	query := "SELECT " + sessionColumns + " FROM simulation_sessions WHERE id = $1"

	session, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return session, err
}

// ListSessions filters by design when DesignID is set, otherwise by owner.
func (s *Store) ListSessions(ctx context.Context, filter store.SessionFilter) ([]store.Session, error) {
	var (
		column string
		value  uuid.UUID
	)
	switch {
	case filter.DesignID != nil:
		column, value = "design_id", *filter.DesignID
	case filter.StartedBy != nil:
		column, value = "started_by", *filter.StartedBy
	default:
		return nil, fmt.Errorf("session filter requires a design or an owner")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM simulation_sessions
		WHERE %s = $1
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3
	`, sessionColumns, column)

	rows, err := s.db.QueryContext(ctx, query, value, filter.Skip, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []store.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	return sessions, rows.Err()
}

// UpdateSession merges the supplied fields. Status is never touched here.
func (s *Store) UpdateSession(ctx context.Context, id uuid.UUID, update store.SessionUpdate) (*store.Session, error) {
	query := `
		UPDATE simulation_sessions
		SET name = COALESCE($2, name),
			description = COALESCE($3, description),
			configuration = COALESCE($4::jsonb, configuration),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + sessionColumns

	var configuration any
	if update.Configuration != nil {
		configuration = update.Configuration
	}

	session, err := scanSession(s.db.QueryRowContext(ctx, query, id, update.Name, update.Description, configuration))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return session, err
}

// TransitionSession is a compare-and-set on status. started_at and
// completed_at are only ever written once.
func (s *Store) TransitionSession(ctx context.Context, tx store.DBTransaction, id uuid.UUID, t store.Transition) (*store.Session, error) {
	query := `
		UPDATE simulation_sessions
		SET status = $3,
			started_at = CASE WHEN $4::boolean THEN COALESCE(started_at, $6::timestamptz) ELSE started_at END,
			completed_at = CASE WHEN $5::boolean THEN COALESCE(completed_at, $6::timestamptz) ELSE completed_at END,
			results = COALESCE($7::jsonb, results),
			updated_at = $6::timestamptz
		WHERE id = $1 AND status = $2
		RETURNING ` + sessionColumns

	var results any
	if t.Results != nil {
		results = t.Results
	}

	session, err := scanSession(s.getExecutor(tx).QueryRowContext(ctx, query,
		id, t.From, t.To, t.MarkStarted, t.MarkCompleted, t.At, results,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrStatusConflict
	}
	return session, err
}

// DeleteSession removes the session. Events, metrics, faults and pending
// engine commands go with it through ON DELETE CASCADE.
func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM simulation_sessions WHERE id = $1", id)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
