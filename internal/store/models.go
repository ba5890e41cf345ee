// Package store contains the database layer for simplane.
package store

import (
	"encoding/json"
	"time"

	"simplane/internal/lifecycle"

	"github.com/google/uuid"
)

// Session is one run (or planned run) of a simulation against a design.
type Session struct {
	ID            uuid.UUID
	DesignID      uuid.UUID
	Name          string
	Description   *string
	Configuration Document
	Results       Document
	Status        lifecycle.Status
	StartedBy     uuid.UUID
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Event is a discrete, timestamped occurrence during a simulation run.
// Timestamp is simulation-relative, not wall clock.
type Event struct {
	ID          uuid.UUID
	SessionID   uuid.UUID
	EventType   string
	ComponentID *string
	Timestamp   float64
	Data        Document
	CreatedAt   time.Time
}

// Metric is a numeric sample taken during a simulation run.
type Metric struct {
	ID          uuid.UUID
	SessionID   uuid.UUID
	MetricName  string
	ComponentID *string
	Timestamp   float64
	Value       float64
	Unit        *string
	Tags        Document
	CreatedAt   time.Time
}

// Fault is a scheduled disruption targeting one component.
type Fault struct {
	ID              uuid.UUID
	SessionID       uuid.UUID
	FaultType       string
	TargetComponent string
	Parameters      Document
	StartTime       float64
	// Duration is nil for a fault that lasts until explicitly ended.
	Duration  *float64
	Status    FaultStatus
	CreatedAt time.Time
}

// FaultStatus represents the progress of a fault injection.
type FaultStatus string

const (
	FaultStatusScheduled FaultStatus = "scheduled"
	FaultStatusActive    FaultStatus = "active"
	FaultStatusCompleted FaultStatus = "completed"
)

// Valid reports whether s is a known fault status.
func (s FaultStatus) Valid() bool {
	switch s {
	case FaultStatusScheduled, FaultStatusActive, FaultStatusCompleted:
		return true
	}
	return false
}

// EngineCommand is an outbox row addressed to the external simulation runtime.
type EngineCommand struct {
	ID        int64
	SessionID uuid.UUID
	Kind      string
	Payload   json.RawMessage
	Attempt   int
	CreatedAt time.Time
}

// Engine command kinds.
const (
	CommandStart         = "start"
	CommandPause         = "pause"
	CommandResume        = "resume"
	CommandStop          = "stop"
	CommandFail          = "fail"
	CommandScheduleFault = "schedule_fault"
	CommandCancelFault   = "cancel_fault"
)

// SessionFilter selects sessions by design or by owner.
// Exactly one of DesignID and StartedBy is expected to be set.
type SessionFilter struct {
	DesignID  *uuid.UUID
	StartedBy *uuid.UUID
	Skip      int
	Limit     int
}

// SessionUpdate carries the mutable, non-status fields of a session.
// Nil fields are left untouched.
type SessionUpdate struct {
	Name          *string
	Description   *string
	Configuration Document
}

// Empty reports whether the update changes nothing.
func (u SessionUpdate) Empty() bool {
	return u.Name == nil && u.Description == nil && u.Configuration == nil
}

// Transition is an atomic status change guarded by the expected current status.
type Transition struct {
	lifecycle.Effect
	// Results replaces the results document when non-nil.
	Results Document
	At      time.Time
}

// EventFilter narrows an event listing.
type EventFilter struct {
	ComponentID string
	Skip        int
	Limit       int
}

// MetricFilter narrows a metric listing.
type MetricFilter struct {
	ComponentID string
	MetricName  string
	Skip        int
	Limit       int
}
