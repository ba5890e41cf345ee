package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStatusConflict is returned by TransitionSession when the session
	// is no longer in the expected status.
	ErrStatusConflict = errors.New("session status changed concurrently")
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// SessionStore persists simulation sessions.
type SessionStore interface {
	// CreateSession inserts a new session.
	CreateSession(ctx context.Context, tx DBTransaction, session *Session) error

	// GetSession returns a session by its ID, or ErrNotFound.
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)

	// ListSessions returns sessions newest first.
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)

	// UpdateSession merges the supplied fields and returns the updated row, or ErrNotFound.
	UpdateSession(ctx context.Context, id uuid.UUID, update SessionUpdate) (*Session, error)

	// TransitionSession moves a session from t.From to t.To only if it is still in t.From.
	// It returns ErrStatusConflict when no row matched.
	TransitionSession(ctx context.Context, tx DBTransaction, id uuid.UUID, t Transition) (*Session, error)

	// DeleteSession removes a session and, through the foreign keys, its children.
	DeleteSession(ctx context.Context, id uuid.UUID) (bool, error)
}

// TimelineStore persists the immutable event and metric streams of a session.
type TimelineStore interface {
	AppendEvent(ctx context.Context, event *Event) error
	// ListEvents returns events ordered by simulation timestamp.
	ListEvents(ctx context.Context, sessionID uuid.UUID, filter EventFilter) ([]Event, error)

	AppendMetric(ctx context.Context, metric *Metric) error
	// ListMetrics returns metrics ordered by simulation timestamp.
	ListMetrics(ctx context.Context, sessionID uuid.UUID, filter MetricFilter) ([]Metric, error)
}

// FaultStore persists fault injection directives.
type FaultStore interface {
	ScheduleFault(ctx context.Context, tx DBTransaction, fault *Fault) error

	// ListFaults returns faults ordered by start time.
	ListFaults(ctx context.Context, sessionID uuid.UUID) ([]Fault, error)

	GetFault(ctx context.Context, id uuid.UUID) (*Fault, error)

	// UpdateFaultStatus sets the status without checking the previous one.
	UpdateFaultStatus(ctx context.Context, id uuid.UUID, status FaultStatus) (*Fault, error)

	DeleteFault(ctx context.Context, tx DBTransaction, id uuid.UUID) (bool, error)
}

// Outbox queues commands for the external simulation runtime.
// Implementations must use SELECT ... FOR UPDATE SKIP LOCKED semantics.
type Outbox interface {
	// Enqueue adds a command, normally inside the transaction that caused it.
	Enqueue(ctx context.Context, tx DBTransaction, cmd *EngineCommand) (int64, error)

	// DequeueBatch claims up to 'limit' visible commands atomically.
	// Returns nil slice if the outbox is empty.
	DequeueBatch(ctx context.Context, limit int) ([]EngineCommand, error)

	// Complete removes a delivered command.
	Complete(ctx context.Context, id int64) error

	// Fail schedules a retry, or drops the command once attempts are exhausted.
	// It reports whether the command was dropped.
	Fail(ctx context.Context, id int64, errMsg string) (bool, error)

	// Count tracks the number of undelivered commands.
	Count(ctx context.Context) (int64, error)
}
