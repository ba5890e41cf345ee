// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the orchestrator.
package api

import (
	"encoding/json"
	"time"
)

// CreateSessionRequest is the request body for creating a simulation session.
type CreateSessionRequest struct {
	DesignID      string         `json:"design_id"`
	Name          string         `json:"name"`
	Description   *string        `json:"description,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// UpdateSessionRequest carries the mutable fields of a session.
// Omitted fields are left unchanged.
type UpdateSessionRequest struct {
	Name          *string        `json:"name,omitempty"`
	Description   *string        `json:"description,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// StopSessionRequest is the optional body of a stop call.
type StopSessionRequest struct {
	Results map[string]any `json:"results,omitempty"`
}

// ReportFailureRequest is sent by the simulation runtime when a run crashes.
type ReportFailureRequest struct {
	Error   string         `json:"error,omitempty"`
	Results map[string]any `json:"results,omitempty"`
}

// SessionResponse represents a simulation session in API responses.
type SessionResponse struct {
	ID            string         `json:"id"`
	DesignID      string         `json:"design_id"`
	Name          string         `json:"name"`
	Description   *string        `json:"description,omitempty"`
	Configuration map[string]any `json:"configuration"`
	Results       map[string]any `json:"results"`
	Status        string         `json:"status"`
	StartedBy     string         `json:"started_by"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// SessionDetailsResponse is a session with its recorded history.
type SessionDetailsResponse struct {
	SessionResponse
	Events  []EventResponse  `json:"events"`
	Metrics []MetricResponse `json:"metrics"`
	Faults  []FaultResponse  `json:"faults"`
}

// CreateEventRequest is posted by the simulation runtime.
type CreateEventRequest struct {
	EventType   string         `json:"event_type"`
	ComponentID *string        `json:"component_id,omitempty"`
	Timestamp   *float64       `json:"timestamp"`
	Data        map[string]any `json:"data,omitempty"`
}

// EventResponse represents a simulation event.
type EventResponse struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	EventType   string         `json:"event_type"`
	ComponentID *string        `json:"component_id,omitempty"`
	Timestamp   float64        `json:"timestamp"`
	Data        map[string]any `json:"data"`
	CreatedAt   time.Time      `json:"created_at"`
}

// CreateMetricRequest is posted by the simulation runtime.
type CreateMetricRequest struct {
	MetricName  string         `json:"metric_name"`
	ComponentID *string        `json:"component_id,omitempty"`
	Timestamp   *float64       `json:"timestamp"`
	Value       *float64       `json:"value"`
	Unit        *string        `json:"unit,omitempty"`
	Tags        map[string]any `json:"tags,omitempty"`
}

// MetricResponse represents a simulation metric sample.
type MetricResponse struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	MetricName  string         `json:"metric_name"`
	ComponentID *string        `json:"component_id,omitempty"`
	Timestamp   float64        `json:"timestamp"`
	Value       float64        `json:"value"`
	Unit        *string        `json:"unit,omitempty"`
	Tags        map[string]any `json:"tags"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ScheduleFaultRequest is the request body for scheduling a fault injection.
type ScheduleFaultRequest struct {
	FaultType       string         `json:"fault_type"`
	TargetComponent string         `json:"target_component"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	StartTime       *float64       `json:"start_time"`
	// Duration is omitted for a fault that lasts until explicitly ended.
	Duration *float64 `json:"duration,omitempty"`
}

// UpdateFaultStatusRequest is sent by the simulation runtime.
type UpdateFaultStatusRequest struct {
	Status string `json:"status"`
}

// FaultResponse represents a fault injection.
type FaultResponse struct {
	ID              string         `json:"id"`
	SessionID       string         `json:"session_id"`
	FaultType       string         `json:"fault_type"`
	TargetComponent string         `json:"target_component"`
	Parameters      map[string]any `json:"parameters"`
	StartTime       float64        `json:"start_time"`
	Duration        *float64       `json:"duration,omitempty"`
	Status          string         `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
}

// EngineCommand is the body the dispatcher posts to the simulation runtime.
type EngineCommand struct {
	CommandID int64           `json:"command_id"`
	SessionID string          `json:"session_id"`
	Kind      string          `json:"kind"`
	Attempt   int             `json:"attempt"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EngineCommandPayload is how a command is stored in the outbox: the data for
// the runtime plus the trace context of the request that queued it.
type EngineCommandPayload struct {
	Data  json.RawMessage   `json:"data,omitempty"`
	Trace map[string]string `json:"trace,omitempty"`
}

// LiveMessage is the envelope pushed over the live websocket.
type LiveMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeNotFound            = "not_found"
	CodeUnauthorized        = "unauthorized"
	CodeForbidden           = "forbidden"
	CodeInvalidTransition   = "invalid_transition"
	CodeValidation          = "validation_error"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeRateLimited         = "rate_limited"
	CodeInternal            = "internal_error"
)

// Pagination windows.
const (
	DefaultSessionLimit = 100
	MaxSessionLimit     = 1000
	DefaultEventLimit   = 1000
	MaxEventLimit       = 10000
	DefaultMetricLimit  = 10000
	MaxMetricLimit      = 100000
)
