package postgres

import (
	"context"
	"database/sql"
	"errors"

	"simplane/internal/store"

	"github.com/google/uuid"
)

const faultColumns = "id, session_id, fault_type, target_component, parameters, start_time, duration, status, created_at"

func scanFault(row rowScanner) (*store.Fault, error) {
	var f store.Fault
	err := row.Scan(
		&f.ID, &f.SessionID, &f.FaultType, &f.TargetComponent, &f.Parameters,
		&f.StartTime, &f.Duration, &f.Status, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ScheduleFault inserts a fault directive. The session may be in any status.
func (s *Store) ScheduleFault(ctx context.Context, tx store.DBTransaction, fault *store.Fault) error {
	query := `
		INSERT INTO fault_injections (id, session_id, fault_type, target_component, parameters, start_time, duration, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.getExecutor(tx).ExecContext(ctx, query,
		fault.ID,
		fault.SessionID,
		fault.FaultType,
		fault.TargetComponent,
		fault.Parameters,
		fault.StartTime,
		fault.Duration,
		fault.Status,
		fault.CreatedAt,
	)
	return err
}

func (s *Store) ListFaults(ctx context.Context, sessionID uuid.UUID) ([]store.Fault, error) {
	query := "SELECT " + faultColumns + " FROM fault_injections WHERE session_id = $1 ORDER BY start_time ASC, created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	faults := []store.Fault{}
	for rows.Next() {
		f, err := scanFault(rows)
		if err != nil {
			return nil, err
		}
		faults = append(faults, *f)
	}

	return faults, rows.Err()
}

func (s *Store) GetFault(ctx context.Context, id uuid.UUID) (*store.Fault, error) {
	query := "SELECT " + faultColumns + " FROM fault_injections WHERE id = $1"

	fault, err := scanFault(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return fault, err
}

// UpdateFaultStatus trusts the caller: any known status may follow any other.
func (s *Store) UpdateFaultStatus(ctx context.Context, id uuid.UUID, status store.FaultStatus) (*store.Fault, error) {
	query := "UPDATE fault_injections SET status = $2 WHERE id = $1 RETURNING " + faultColumns

	fault, err := scanFault(s.db.QueryRowContext(ctx, query, id, status))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return fault, err
}

func (s *Store) DeleteFault(ctx context.Context, tx store.DBTransaction, id uuid.UUID) (bool, error) {
	res, err := s.getExecutor(tx).ExecContext(ctx, "DELETE FROM fault_injections WHERE id = $1", id)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
