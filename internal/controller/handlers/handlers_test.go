package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"simplane/internal/access"
	"simplane/internal/lifecycle"
	"simplane/internal/orchestrator"
	"simplane/internal/store"

	"github.com/google/uuid"
)

// Mock Service
type mockService struct {
	// Hooks
	err      error
	session  *store.Session
	details  *orchestrator.SessionDetails
	sessions []store.Session
	event    *store.Event
	events   []store.Event
	metric   *store.Metric
	metrics  []store.Metric
	fault    *store.Fault
	faults   []store.Fault
	pingErr  error

	// Spies (to verify arguments passed by handlers)
	calledWith      string
	capturedSubject access.Subject
	capturedID      uuid.UUID
	capturedFaultID uuid.UUID
	capturedDesign  *uuid.UUID
	capturedPage    orchestrator.Page
	capturedCreate  orchestrator.CreateSessionInput
	capturedUpdate  store.SessionUpdate
	capturedResults store.Document
	capturedReason  string
	capturedEvent   orchestrator.EventInput
	capturedMetric  orchestrator.MetricInput
	capturedFault   orchestrator.FaultInput
	capturedStatus  store.FaultStatus
	capturedFilter  [2]string
}

func (m *mockService) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockService) sessionOrErr(op string, subject access.Subject, id uuid.UUID) (*store.Session, error) {
	m.calledWith = op
	m.capturedSubject = subject
	m.capturedID = id
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

func (m *mockService) CreateSession(ctx context.Context, subject access.Subject, in orchestrator.CreateSessionInput) (*store.Session, error) {
	m.capturedCreate = in
	return m.sessionOrErr("create", subject, uuid.Nil)
}

func (m *mockService) ListSessions(ctx context.Context, subject access.Subject, designID *uuid.UUID, page orchestrator.Page) ([]store.Session, error) {
	m.calledWith = "list"
	m.capturedSubject = subject
	m.capturedDesign = designID
	m.capturedPage = page
	return m.sessions, m.err
}

func (m *mockService) GetSession(ctx context.Context, subject access.Subject, id uuid.UUID) (*store.Session, error) {
	return m.sessionOrErr("get", subject, id)
}

func (m *mockService) GetSessionDetails(ctx context.Context, subject access.Subject, id uuid.UUID) (*orchestrator.SessionDetails, error) {
	m.calledWith = "details"
	m.capturedID = id
	if m.err != nil {
		return nil, m.err
	}
	return m.details, nil
}

func (m *mockService) UpdateSession(ctx context.Context, subject access.Subject, id uuid.UUID, update store.SessionUpdate) (*store.Session, error) {
	m.capturedUpdate = update
	return m.sessionOrErr("update", subject, id)
}

func (m *mockService) DeleteSession(ctx context.Context, subject access.Subject, id uuid.UUID) error {
	_, err := m.sessionOrErr("delete", subject, id)
	return err
}

func (m *mockService) StartSession(ctx context.Context, subject access.Subject, id uuid.UUID) (*store.Session, error) {
	return m.sessionOrErr("start", subject, id)
}

func (m *mockService) PauseSession(ctx context.Context, subject access.Subject, id uuid.UUID) (*store.Session, error) {
	return m.sessionOrErr("pause", subject, id)
}

func (m *mockService) ResumeSession(ctx context.Context, subject access.Subject, id uuid.UUID) (*store.Session, error) {
	return m.sessionOrErr("resume", subject, id)
}

func (m *mockService) StopSession(ctx context.Context, subject access.Subject, id uuid.UUID, results store.Document) (*store.Session, error) {
	m.capturedResults = results
	return m.sessionOrErr("stop", subject, id)
}

func (m *mockService) ReportFailure(ctx context.Context, id uuid.UUID, reason string, results store.Document) (*store.Session, error) {
	m.capturedReason = reason
	m.capturedResults = results
	return m.sessionOrErr("fail", access.Subject{}, id)
}

func (m *mockService) AppendEvent(ctx context.Context, sessionID uuid.UUID, in orchestrator.EventInput) (*store.Event, error) {
	m.calledWith = "append_event"
	m.capturedID = sessionID
	m.capturedEvent = in
	if m.err != nil {
		return nil, m.err
	}
	return m.event, nil
}

func (m *mockService) ListEvents(ctx context.Context, subject access.Subject, sessionID uuid.UUID, componentID string, page orchestrator.Page) ([]store.Event, error) {
	m.calledWith = "list_events"
	m.capturedID = sessionID
	m.capturedFilter = [2]string{componentID, ""}
	m.capturedPage = page
	return m.events, m.err
}

func (m *mockService) AppendMetric(ctx context.Context, sessionID uuid.UUID, in orchestrator.MetricInput) (*store.Metric, error) {
	m.calledWith = "append_metric"
	m.capturedID = sessionID
	m.capturedMetric = in
	if m.err != nil {
		return nil, m.err
	}
	return m.metric, nil
}

func (m *mockService) ListMetrics(ctx context.Context, subject access.Subject, sessionID uuid.UUID, componentID, metricName string, page orchestrator.Page) ([]store.Metric, error) {
	m.calledWith = "list_metrics"
	m.capturedID = sessionID
	m.capturedFilter = [2]string{componentID, metricName}
	m.capturedPage = page
	return m.metrics, m.err
}

func (m *mockService) ScheduleFault(ctx context.Context, subject access.Subject, sessionID uuid.UUID, in orchestrator.FaultInput) (*store.Fault, error) {
	m.calledWith = "schedule_fault"
	m.capturedID = sessionID
	m.capturedFault = in
	if m.err != nil {
		return nil, m.err
	}
	return m.fault, nil
}

func (m *mockService) ListFaults(ctx context.Context, subject access.Subject, sessionID uuid.UUID) ([]store.Fault, error) {
	m.calledWith = "list_faults"
	m.capturedID = sessionID
	return m.faults, m.err
}

func (m *mockService) UpdateFaultStatus(ctx context.Context, faultID uuid.UUID, status store.FaultStatus) (*store.Fault, error) {
	m.calledWith = "update_fault"
	m.capturedFaultID = faultID
	m.capturedStatus = status
	if m.err != nil {
		return nil, m.err
	}
	return m.fault, nil
}

func (m *mockService) DeleteFault(ctx context.Context, subject access.Subject, sessionID, faultID uuid.UUID) error {
	m.calledWith = "delete_fault"
	m.capturedID = sessionID
	m.capturedFaultID = faultID
	return m.err
}

var testUser = access.Subject{ID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), Token: "tok"}

func sampleSession(status lifecycle.Status) *store.Session {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return &store.Session{
		ID:        uuid.New(),
		DesignID:  uuid.New(),
		Name:      "load test",
		Status:    status,
		StartedBy: testUser.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// newRequest builds a request as the router would hand it over: path values
// set and, unless anonymous, an authenticated subject in the context.
func newRequest(method, target string, body []byte, pathValues map[string]string, anonymous bool) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	if !anonymous {
		req = req.WithContext(access.WithSubject(req.Context(), testUser))
	}
	return req
}
