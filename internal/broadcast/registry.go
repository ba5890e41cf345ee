// Package broadcast fans live session updates out to connected subscribers.
//
// Delivery is best effort: a subscriber that fails a write is dropped and
// nothing is replayed. Consumers reconcile against the durable timeline
// after reconnecting.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MessageType tags the envelope pushed to subscribers.
type MessageType string

const (
	TypeSimulationStarted MessageType = "simulation_started"
	TypeSimulationStopped MessageType = "simulation_stopped"
	TypeSimulationPaused  MessageType = "simulation_paused"
	TypeSimulationResumed MessageType = "simulation_resumed"
	TypeSimulationFailed  MessageType = "simulation_failed"
	TypeSimulationEvent   MessageType = "simulation_event"
	TypeSimulationMetric  MessageType = "simulation_metric"
	TypeFaultScheduled    MessageType = "fault_scheduled"
	TypeFaultUpdated      MessageType = "fault_updated"
	TypeAck               MessageType = "ack"
)

// Message is the envelope delivered to every subscriber of a session.
type Message struct {
	Type      MessageType `json:"type"`
	SessionID uuid.UUID   `json:"session_id"`
	Payload   any         `json:"payload,omitempty"`
}

// Subscriber is one live connection. Send must deliver messages in call order.
type Subscriber interface {
	Send(ctx context.Context, data []byte) error
	Close() error
}

type topic struct {
	// sendMu keeps concurrent publishers from interleaving on one session.
	sendMu sync.Mutex
	subs   map[Subscriber]struct{}
}

// Registry maps session ids to their live subscribers.
// It is owned by one orchestrator instance; a multi-instance deployment would
// need a shared pub/sub layer behind it.
type Registry struct {
	mu     sync.RWMutex
	topics map[uuid.UUID]*topic
	logger *slog.Logger

	delivered metric.Int64Counter
	dropped   metric.Int64Counter
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		topics: make(map[uuid.UUID]*topic),
		logger: logger,
	}

	meter := otel.Meter("simplane/broadcast")
	var err error
	if r.delivered, err = meter.Int64Counter("simplane.broadcast.delivered",
		metric.WithDescription("Messages written to live subscribers")); err != nil {
		logger.Warn("failed to create broadcast counter", "error", err)
	}
	if r.dropped, err = meter.Int64Counter("simplane.broadcast.dropped",
		metric.WithDescription("Subscribers removed after a failed write")); err != nil {
		logger.Warn("failed to create broadcast counter", "error", err)
	}

	return r
}

// Subscribe adds sub to the session's subscriber set.
func (r *Registry) Subscribe(sessionID uuid.UUID, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.topics[sessionID]
	if !ok {
		t = &topic{subs: make(map[Subscriber]struct{})}
		r.topics[sessionID] = t
	}
	t.subs[sub] = struct{}{}
}

// Unsubscribe removes sub and reports whether it was registered.
func (r *Registry) Unsubscribe(sessionID uuid.UUID, sub Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.topics[sessionID]
	if !ok {
		return false
	}
	if _, ok := t.subs[sub]; !ok {
		return false
	}
	delete(t.subs, sub)
	if len(t.subs) == 0 {
		delete(r.topics, sessionID)
	}
	return true
}

// Count returns the number of subscribers of one session.
func (r *Registry) Count(sessionID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.topics[sessionID]; ok {
		return len(t.subs)
	}
	return 0
}

// Total returns the number of subscribers across all sessions.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, t := range r.topics {
		n += len(t.subs)
	}
	return n
}

// Publish writes msg to every current subscriber of msg.SessionID and returns
// how many received it. Failed subscribers are removed and closed; errors never
// reach the caller. A done ctx stops the fan-out without removing anyone.
func (r *Registry) Publish(ctx context.Context, msg Message) int {
	r.mu.RLock()
	t, ok := r.topics[msg.SessionID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("failed to marshal broadcast message", "type", msg.Type, "session_id", msg.SessionID, "error", err)
		return 0
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	r.mu.RLock()
	subs := make([]Subscriber, 0, len(t.subs))
	for sub := range t.subs {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		// A publisher that gave up is not a dead subscriber.
		if ctx.Err() != nil {
			r.logger.Debug("publish abandoned", "session_id", msg.SessionID, "type", msg.Type, "error", ctx.Err())
			break
		}
		if err := sub.Send(ctx, data); err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.logger.Warn("dropping live subscriber", "session_id", msg.SessionID, "error", err)
			if r.Unsubscribe(msg.SessionID, sub) {
				r.add(ctx, r.dropped, 1, msg.Type)
			}
			sub.Close()
			continue
		}
		delivered++
	}

	r.add(ctx, r.delivered, int64(delivered), msg.Type)
	return delivered
}

// CloseAll disconnects every subscriber. Used on shutdown, since hijacked
// connections outlive http.Server.Shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	topics := r.topics
	r.topics = make(map[uuid.UUID]*topic)
	r.mu.Unlock()

	for _, t := range topics {
		for sub := range t.subs {
			sub.Close()
		}
	}
}

func (r *Registry) add(ctx context.Context, c metric.Int64Counter, n int64, typ MessageType) {
	if c == nil || n == 0 {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attribute.String("type", string(typ))))
}
