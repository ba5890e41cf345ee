// Package lifecycle holds the simulation session state machine.
// It is pure: callers persist the result and decide what to broadcast.
package lifecycle

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a simulation session.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no operation can leave the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusRunning, StatusPaused, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Operation is a request to move a session to another status.
type Operation string

const (
	OpStart  Operation = "start"
	OpPause  Operation = "pause"
	OpResume Operation = "resume"
	OpStop   Operation = "stop"
	// OpFail is only reachable through the runtime-facing failure report.
	OpFail Operation = "fail"
)

// ErrInvalidTransition matches every *InvalidTransitionError via errors.Is.
var ErrInvalidTransition = errors.New("invalid transition")

// InvalidTransitionError describes an operation that is not legal from the current status.
type InvalidTransitionError struct {
	From      Status
	Operation Operation
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s simulation in %s state", e.Operation, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

type edge struct {
	from Status
	op   Operation
}

var transitions = map[edge]Status{
	{StatusCreated, OpStart}: StatusRunning,
	{StatusPaused, OpStart}:  StatusRunning,
	{StatusRunning, OpPause}: StatusPaused,
	{StatusPaused, OpResume}: StatusRunning,
	{StatusRunning, OpStop}:  StatusCompleted,
	{StatusRunning, OpFail}:  StatusFailed,
	{StatusPaused, OpFail}:   StatusFailed,
}

// Effect is what a legal transition does to a session.
type Effect struct {
	From Status
	To   Status
	// MarkStarted means started_at is set if it has never been set.
	MarkStarted bool
	// MarkCompleted means completed_at is set if it has never been set.
	MarkCompleted bool
}

// Transition validates op against the current status.
// Illegal pairs return an *InvalidTransitionError and a zero Effect.
func Transition(from Status, op Operation) (Effect, error) {
	to, ok := transitions[edge{from, op}]
	if !ok {
		return Effect{}, &InvalidTransitionError{From: from, Operation: op}
	}
	return Effect{
		From:          from,
		To:            to,
		MarkStarted:   to == StatusRunning,
		MarkCompleted: to.Terminal(),
	}, nil
}

// Can reports whether op is legal from the given status.
func Can(from Status, op Operation) bool {
	_, ok := transitions[edge{from, op}]
	return ok
}
