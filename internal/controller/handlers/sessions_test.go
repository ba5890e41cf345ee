package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"simplane/internal/access"
	"simplane/internal/lifecycle"
	"simplane/internal/orchestrator"
	"simplane/internal/store"
	"simplane/pkg/api"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestCreateSession(t *testing.T) {
	designID := uuid.New()
	validBody, _ := json.Marshal(api.CreateSessionRequest{
		DesignID:      designID.String(),
		Name:          "peak traffic",
		Configuration: map[string]any{"duration": 60},
	})

	tests := []struct {
		name           string
		body           []byte
		anonymous      bool
		mockSetup      func(*mockService)
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "Success",
			body:           validBody,
			mockSetup:      func(m *mockService) { m.session = sampleSession(lifecycle.StatusCreated) },
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Invalid JSON",
			body:           []byte(`{invalid-json}`),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   api.CodeValidation,
		},
		{
			name:           "Malformed Design ID",
			body:           []byte(`{"design_id":"nope","name":"x"}`),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   api.CodeValidation,
		},
		{
			name: "Validation Error From Service",
			body: validBody,
			mockSetup: func(m *mockService) {
				m.err = &orchestrator.ValidationError{Field: "name", Message: "is required"}
			},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   api.CodeValidation,
		},
		{
			name:           "Design Access Denied",
			body:           validBody,
			mockSetup:      func(m *mockService) { m.err = access.ErrForbidden },
			expectedStatus: http.StatusForbidden,
			expectedCode:   api.CodeForbidden,
		},
		{
			name:           "Design Missing",
			body:           validBody,
			mockSetup:      func(m *mockService) { m.err = access.ErrDesignNotFound },
			expectedStatus: http.StatusNotFound,
			expectedCode:   api.CodeNotFound,
		},
		{
			name:           "Design Service Down",
			body:           validBody,
			mockSetup:      func(m *mockService) { m.err = access.ErrUpstreamUnavailable },
			expectedStatus: http.StatusBadGateway,
			expectedCode:   api.CodeUpstreamUnavailable,
		},
		{
			name:           "Store Failure",
			body:           validBody,
			mockSetup:      func(m *mockService) { m.err = errors.New("insert failed") },
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   api.CodeInternal,
		},
		{
			name:           "No Subject",
			body:           validBody,
			anonymous:      true,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   api.CodeUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockService{}
			if tt.mockSetup != nil {
				tt.mockSetup(mock)
			}
			h := New(mock, mock, nil, Options{})

			req := newRequest(http.MethodPost, "/simulations", tt.body, nil, tt.anonymous)
			rr := httptest.NewRecorder()
			h.CreateSession(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code, rr.Body.String())
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeError(t, rr).Code)
			}
		})
	}
}

func TestCreateSession_PassesInputThrough(t *testing.T) {
	designID := uuid.New()
	mock := &mockService{session: sampleSession(lifecycle.StatusCreated)}
	h := New(mock, mock, nil, Options{})

	body := []byte(`{"design_id":"` + designID.String() + `","name":"peak","configuration":{"rps":100}}`)
	rr := httptest.NewRecorder()
	h.CreateSession(rr, newRequest(http.MethodPost, "/simulations", body, nil, false))

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, testUser, mock.capturedSubject)
	assert.Equal(t, designID, mock.capturedCreate.DesignID)
	assert.Equal(t, "peak", mock.capturedCreate.Name)
	assert.Equal(t, json.Number("100"), mock.capturedCreate.Configuration["rps"])

	var resp api.SessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "created", resp.Status)
	assert.Equal(t, mock.session.ID.String(), resp.ID)
}

func TestCreateSession_KeepsLargeIntegersInConfiguration(t *testing.T) {
	mock := &mockService{session: sampleSession(lifecycle.StatusCreated)}
	h := New(mock, mock, nil, Options{})

	body := []byte(`{"design_id":"` + uuid.NewString() + `","name":"seeded","configuration":{"seed":9007199254740993,"run_id":1234567890123456789}}`)
	rr := httptest.NewRecorder()
	h.CreateSession(rr, newRequest(http.MethodPost, "/simulations", body, nil, false))

	require.Equal(t, http.StatusCreated, rr.Code)
	stored, err := store.Document(mock.capturedCreate.Configuration).Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"seed":9007199254740993,"run_id":1234567890123456789}`, stored.(string))
	assert.Contains(t, stored.(string), "9007199254740993")
	assert.Contains(t, stored.(string), "1234567890123456789")
}

func TestListSessions(t *testing.T) {
	designID := uuid.New()

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedDesign *uuid.UUID
		expectedPage   orchestrator.Page
	}{
		{"Own Sessions", "", http.StatusOK, nil, orchestrator.Page{}},
		{"By Design", "?design_id=" + designID.String(), http.StatusOK, &designID, orchestrator.Page{}},
		{"Paged", "?skip=10&limit=5", http.StatusOK, nil, orchestrator.Page{Skip: 10, Limit: 5}},
		{"Bad Design", "?design_id=zzz", http.StatusBadRequest, nil, orchestrator.Page{}},
		{"Zero Limit", "?limit=0", http.StatusBadRequest, nil, orchestrator.Page{}},
		{"Non Numeric Skip", "?skip=abc", http.StatusBadRequest, nil, orchestrator.Page{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockService{sessions: []store.Session{*sampleSession(lifecycle.StatusRunning)}}
			h := New(mock, mock, nil, Options{})

			rr := httptest.NewRecorder()
			h.ListSessions(rr, newRequest(http.MethodGet, "/simulations"+tt.query, nil, nil, false))

			require.Equal(t, tt.expectedStatus, rr.Code, rr.Body.String())
			if tt.expectedStatus != http.StatusOK {
				assert.Empty(t, mock.calledWith, "service must not be called on bad input")
				return
			}
			assert.Equal(t, tt.expectedDesign, mock.capturedDesign)
			assert.Equal(t, tt.expectedPage, mock.capturedPage)

			var resp []api.SessionResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Len(t, resp, 1)
		})
	}
}

func TestListSessions_EmptyIsArray(t *testing.T) {
	mock := &mockService{}
	h := New(mock, mock, nil, Options{})

	rr := httptest.NewRecorder()
	h.ListSessions(rr, newRequest(http.MethodGet, "/simulations", nil, nil, false))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestGetSession(t *testing.T) {
	session := sampleSession(lifecycle.StatusRunning)

	tests := []struct {
		name           string
		idParam        string
		mockSetup      func(*mockService)
		expectedStatus int
	}{
		{
			name:    "Success",
			idParam: session.ID.String(),
			mockSetup: func(m *mockService) {
				m.details = &orchestrator.SessionDetails{
					Session: *session,
					Events:  []store.Event{{ID: uuid.New(), SessionID: session.ID, EventType: "request", Timestamp: 1}},
				}
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Invalid UUID Format",
			idParam:        "not-a-uuid",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Not Found",
			idParam:        uuid.NewString(),
			mockSetup:      func(m *mockService) { m.err = orchestrator.ErrSessionNotFound },
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "Identity Rejected",
			idParam:        session.ID.String(),
			mockSetup:      func(m *mockService) { m.err = access.ErrUnauthorized },
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockService{}
			if tt.mockSetup != nil {
				tt.mockSetup(mock)
			}
			h := New(mock, mock, nil, Options{})

			rr := httptest.NewRecorder()
			h.GetSession(rr, newRequest(http.MethodGet, "/simulations/"+tt.idParam, nil, map[string]string{"id": tt.idParam}, false))

			require.Equal(t, tt.expectedStatus, rr.Code, rr.Body.String())
			if tt.expectedStatus == http.StatusOK {
				var resp api.SessionDetailsResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.Equal(t, session.ID.String(), resp.ID)
				assert.Len(t, resp.Events, 1)
				assert.NotNil(t, resp.Metrics)
				assert.NotNil(t, resp.Faults)
			}
		})
	}
}

func TestUpdateSession(t *testing.T) {
	session := sampleSession(lifecycle.StatusCreated)
	mock := &mockService{session: session}
	h := New(mock, mock, nil, Options{})

	body := []byte(`{"name":"renamed"}`)
	rr := httptest.NewRecorder()
	h.UpdateSession(rr, newRequest(http.MethodPut, "/simulations/"+session.ID.String(), body, map[string]string{"id": session.ID.String()}, false))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "update", mock.calledWith)
	assert.Equal(t, session.ID, mock.capturedID)
	require.NotNil(t, mock.capturedUpdate.Name)
	assert.Equal(t, "renamed", *mock.capturedUpdate.Name)
	assert.Nil(t, mock.capturedUpdate.Description)
}

func TestDeleteSession(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"Success", nil, http.StatusNoContent},
		{"Not Found", orchestrator.ErrSessionNotFound, http.StatusNotFound},
		{"Forbidden", access.ErrForbidden, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockService{err: tt.err}
			h := New(mock, mock, nil, Options{})

			rr := httptest.NewRecorder()
			h.DeleteSession(rr, newRequest(http.MethodDelete, "/simulations/"+id.String(), nil, map[string]string{"id": id.String()}, false))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, id, mock.capturedID)
		})
	}
}
