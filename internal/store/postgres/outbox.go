package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"simplane/internal/store"

	"github.com/lib/pq"
)

// Default retry policy
const (
	MaxAttempts       = 8
	VisibilityTimeout = 1 * time.Minute
	MaxRetryBackoff   = 5 * time.Minute
)

// Enqueue adds a command to engine_commands.
func (s *Store) Enqueue(ctx context.Context, tx store.DBTransaction, cmd *store.EngineCommand) (int64, error) {
	query := `
		INSERT INTO engine_commands (session_id, kind, payload)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	payload := string(cmd.Payload)
	if payload == "" {
		payload = "{}"
	}

	var id int64
	err := s.getExecutor(tx).QueryRowContext(ctx, query, cmd.SessionID, cmd.Kind, payload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s command for session %s: %w", cmd.Kind, cmd.SessionID, err)
	}

	cmd.ID = id
	return id, nil
}

// DequeueBatch claims up to 'limit' visible commands using SELECT ... FOR UPDATE SKIP LOCKED.
// Only the oldest command of each session is eligible, so a session's commands
// are delivered one at a time and in order.
func (s *Store) DequeueBatch(ctx context.Context, limit int) ([]store.EngineCommand, error) {
	if limit <= 0 {
		limit = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, session_id, kind, payload, attempt, created_at
		FROM engine_commands
		WHERE visible_after <= NOW()
			AND id IN (SELECT MIN(id) FROM engine_commands GROUP BY session_id)
		ORDER BY id ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("batch dequeue query failed: %w", err)
	}
	defer rows.Close()

	var cmds []store.EngineCommand
	var ids []int64
	for rows.Next() {
		var cmd store.EngineCommand
		var payload []byte
		if err := rows.Scan(&cmd.ID, &cmd.SessionID, &cmd.Kind, &payload, &cmd.Attempt, &cmd.CreatedAt); err != nil {
			return nil, fmt.Errorf("batch dequeue scan failed: %w", err)
		}
		cmd.Payload = payload
		cmds = append(cmds, cmd)
		ids = append(ids, cmd.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch dequeue rows error: %w", err)
	}

	if len(cmds) == 0 {
		return nil, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE engine_commands
		SET visible_after = NOW() + ($1 * INTERVAL '1 second'), attempt = attempt + 1
		WHERE id = ANY($2)
	`, VisibilityTimeout.Seconds(), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("batch visibility update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for i := range cmds {
		cmds[i].Attempt++
	}
	return cmds, nil
}

// Complete removes a delivered command.
func (s *Store) Complete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM engine_commands WHERE id = $1", id)
	return err
}

// Fail reschedules a command with exponential backoff (2s * 2^attempt, capped),
// or drops it after MaxAttempts deliveries.
func (s *Store) Fail(ctx context.Context, id int64, errMsg string) (bool, error) {
	var attempt int
	err := s.db.QueryRowContext(ctx, "SELECT attempt FROM engine_commands WHERE id = $1", id).Scan(&attempt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Already gone, e.g. the session was deleted.
			return true, nil
		}
		return false, err
	}

	if attempt >= MaxAttempts {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM engine_commands WHERE id = $1", id); err != nil {
			return false, fmt.Errorf("failed to drop exhausted command: %w", err)
		}
		return true, nil
	}

	backoff := time.Duration(2*(1<<attempt)) * time.Second
	if backoff > MaxRetryBackoff {
		backoff = MaxRetryBackoff
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE engine_commands
		SET visible_after = NOW() + ($1 * INTERVAL '1 second'), last_error = $2
		WHERE id = $3
	`, backoff.Seconds(), errMsg, id)
	return false, err
}

// Count returns the number of undelivered commands.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM engine_commands").Scan(&count)
	return count, err
}
