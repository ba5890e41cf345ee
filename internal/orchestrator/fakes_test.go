package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"simplane/internal/access"
	"simplane/internal/broadcast"
	"simplane/internal/lifecycle"
	"simplane/internal/store"

	"github.com/google/uuid"
)

// memStore is an in-memory Store with the same ordering and
// compare-and-set rules as the postgres implementation.
type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*store.Session
	events   []store.Event
	metrics  []store.Metric
	faults   map[uuid.UUID]*store.Fault
	commands []store.EngineCommand
	nextCmd  int64

	// beforeTransition runs inside TransitionSession before the status check.
	beforeTransition func(id uuid.UUID)
	enqueueErr       error

	// afterAppend runs once an event has been stored.
	afterAppend func()
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[uuid.UUID]*store.Session),
		faults:   make(map[uuid.UUID]*store.Fault),
	}
}

func (m *memStore) BeginTx(ctx context.Context) (store.Tx, error) {
	return &fakeTx{}, nil
}

func (m *memStore) CreateSession(ctx context.Context, tx store.DBTransaction, s *store.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) GetSession(ctx context.Context, id uuid.UUID) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) ListSessions(ctx context.Context, f store.SessionFilter) ([]store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Session
	for _, s := range m.sessions {
		if f.DesignID != nil && s.DesignID != *f.DesignID {
			continue
		}
		if f.StartedBy != nil && s.StartedBy != *f.StartedBy {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, f.Skip, f.Limit), nil
}

func (m *memStore) UpdateSession(ctx context.Context, id uuid.UUID, u store.SessionUpdate) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if u.Name != nil {
		s.Name = *u.Name
	}
	if u.Description != nil {
		s.Description = u.Description
	}
	if u.Configuration != nil {
		s.Configuration = u.Configuration
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) TransitionSession(ctx context.Context, tx store.DBTransaction, id uuid.UUID, t store.Transition) (*store.Session, error) {
	if m.beforeTransition != nil {
		m.beforeTransition(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != t.From {
		return nil, store.ErrStatusConflict
	}
	s.Status = t.To
	at := t.At
	if t.MarkStarted && s.StartedAt == nil {
		s.StartedAt = &at
	}
	if t.MarkCompleted && s.CompletedAt == nil {
		s.CompletedAt = &at
	}
	if t.Results != nil {
		s.Results = t.Results
	}
	s.UpdatedAt = at
	cp := *s
	return &cp, nil
}

func (m *memStore) DeleteSession(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false, nil
	}
	delete(m.sessions, id)
	return true, nil
}

func (m *memStore) AppendEvent(ctx context.Context, e *store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	if m.afterAppend != nil {
		m.afterAppend()
	}
	return nil
}

func (m *memStore) ListEvents(ctx context.Context, sessionID uuid.UUID, f store.EventFilter) ([]store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Event
	for _, e := range m.events {
		if e.SessionID != sessionID {
			continue
		}
		if f.ComponentID != "" && (e.ComponentID == nil || *e.ComponentID != f.ComponentID) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return window(out, f.Skip, f.Limit), nil
}

func (m *memStore) AppendMetric(ctx context.Context, metric *store.Metric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, *metric)
	return nil
}

func (m *memStore) ListMetrics(ctx context.Context, sessionID uuid.UUID, f store.MetricFilter) ([]store.Metric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Metric
	for _, x := range m.metrics {
		if x.SessionID != sessionID {
			continue
		}
		if f.ComponentID != "" && (x.ComponentID == nil || *x.ComponentID != f.ComponentID) {
			continue
		}
		if f.MetricName != "" && x.MetricName != f.MetricName {
			continue
		}
		out = append(out, x)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return window(out, f.Skip, f.Limit), nil
}

func (m *memStore) ScheduleFault(ctx context.Context, tx store.DBTransaction, f *store.Fault) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.faults[f.ID] = &cp
	return nil
}

func (m *memStore) ListFaults(ctx context.Context, sessionID uuid.UUID) ([]store.Fault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Fault
	for _, f := range m.faults {
		if f.SessionID == sessionID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (m *memStore) GetFault(ctx context.Context, id uuid.UUID) (*store.Fault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.faults[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *memStore) UpdateFaultStatus(ctx context.Context, id uuid.UUID, status store.FaultStatus) (*store.Fault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.faults[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	f.Status = status
	cp := *f
	return &cp, nil
}

func (m *memStore) DeleteFault(ctx context.Context, tx store.DBTransaction, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.faults[id]; !ok {
		return false, nil
	}
	delete(m.faults, id)
	return true, nil
}

func (m *memStore) Enqueue(ctx context.Context, tx store.DBTransaction, cmd *store.EngineCommand) (int64, error) {
	if m.enqueueErr != nil {
		return 0, m.enqueueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCmd++
	cmd.ID = m.nextCmd
	cmd.CreatedAt = time.Now()
	m.commands = append(m.commands, *cmd)
	return cmd.ID, nil
}

func (m *memStore) DequeueBatch(ctx context.Context, limit int) ([]store.EngineCommand, error) {
	return nil, nil
}

func (m *memStore) Complete(ctx context.Context, id int64) error { return nil }

func (m *memStore) Fail(ctx context.Context, id int64, errMsg string) (bool, error) {
	return false, nil
}

func (m *memStore) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.commands)), nil
}

func (m *memStore) commandKinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]string, 0, len(m.commands))
	for _, c := range m.commands {
		kinds = append(kinds, c.Kind)
	}
	return kinds
}

// setStatus changes a session's status behind the service's back.
func (m *memStore) setStatus(id uuid.UUID, status lifecycle.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id].Status = status
}

func window[T any](items []T, skip, limit int) []T {
	if skip >= len(items) {
		return []T{}
	}
	items = items[skip:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// fakeTx satisfies store.Tx; the memStore applies writes immediately.
type fakeTx struct {
	store.DBTransaction
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit() error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback() error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

// fakeAccess allows every design in allowed and denies the rest.
type fakeAccess struct {
	mu      sync.Mutex
	allowed map[uuid.UUID]bool
	err     error
	checks  int
}

func (a *fakeAccess) ResolveSubject(ctx context.Context, token string) (access.Subject, error) {
	return access.Subject{}, access.ErrUnauthorized
}

func (a *fakeAccess) CheckDesignAccess(ctx context.Context, designID uuid.UUID, subject access.Subject) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checks++
	if a.err != nil {
		return a.err
	}
	if !a.allowed[designID] {
		return access.ErrForbidden
	}
	return nil
}

// recorder captures published messages.
type recorder struct {
	mu   sync.Mutex
	msgs []broadcast.Message
}

func (r *recorder) Publish(ctx context.Context, msg broadcast.Message) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return 1
}

func (r *recorder) types() []broadcast.MessageType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]broadcast.MessageType, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Type)
	}
	return out
}
