// Package handlers contains HTTP handlers for the orchestrator API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"simplane/internal/access"
	"simplane/internal/broadcast"
	"simplane/internal/lifecycle"
	"simplane/internal/logger"
	"simplane/internal/orchestrator"
	"simplane/internal/store"
	"simplane/pkg/api"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Service is the orchestration façade the handlers delegate to.
type Service interface {
	CreateSession(ctx context.Context, subject access.Subject, in orchestrator.CreateSessionInput) (*store.Session, error)
	ListSessions(ctx context.Context, subject access.Subject, designID *uuid.UUID, page orchestrator.Page) ([]store.Session, error)
	GetSession(ctx context.Context, subject access.Subject, id uuid.UUID) (*store.Session, error)
	GetSessionDetails(ctx context.Context, subject access.Subject, id uuid.UUID) (*orchestrator.SessionDetails, error)
	UpdateSession(ctx context.Context, subject access.Subject, id uuid.UUID, update store.SessionUpdate) (*store.Session, error)
	DeleteSession(ctx context.Context, subject access.Subject, id uuid.UUID) error

	StartSession(ctx context.Context, subject access.Subject, id uuid.UUID) (*store.Session, error)
	PauseSession(ctx context.Context, subject access.Subject, id uuid.UUID) (*store.Session, error)
	ResumeSession(ctx context.Context, subject access.Subject, id uuid.UUID) (*store.Session, error)
	StopSession(ctx context.Context, subject access.Subject, id uuid.UUID, results store.Document) (*store.Session, error)
	ReportFailure(ctx context.Context, id uuid.UUID, reason string, results store.Document) (*store.Session, error)

	AppendEvent(ctx context.Context, sessionID uuid.UUID, in orchestrator.EventInput) (*store.Event, error)
	ListEvents(ctx context.Context, subject access.Subject, sessionID uuid.UUID, componentID string, page orchestrator.Page) ([]store.Event, error)
	AppendMetric(ctx context.Context, sessionID uuid.UUID, in orchestrator.MetricInput) (*store.Metric, error)
	ListMetrics(ctx context.Context, subject access.Subject, sessionID uuid.UUID, componentID, metricName string, page orchestrator.Page) ([]store.Metric, error)

	ScheduleFault(ctx context.Context, subject access.Subject, sessionID uuid.UUID, in orchestrator.FaultInput) (*store.Fault, error)
	ListFaults(ctx context.Context, subject access.Subject, sessionID uuid.UUID) ([]store.Fault, error)
	UpdateFaultStatus(ctx context.Context, faultID uuid.UUID, status store.FaultStatus) (*store.Fault, error)
	DeleteFault(ctx context.Context, subject access.Subject, sessionID, faultID uuid.UUID) error
}

// Pinger reports database connectivity for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the handlers.
type Options struct {
	Logger *slog.Logger
	Live   broadcast.ServeOptions
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	svc      Service
	pinger   Pinger
	live     *broadcast.Registry
	liveOpts broadcast.ServeOptions
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// New creates a new Handlers instance.
func New(svc Service, pinger Pinger, live *broadcast.Registry, opts Options) *Handlers {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handlers{
		svc:      svc,
		pinger:   pinger,
		live:     live,
		liveOpts: opts.Live,
		logger:   opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers connect from the product's web origin; the bearer token
			// is what authorizes the subscription.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message, code string, status int) {
	h.respondJson(w, status, api.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// serviceError maps a façade error onto the HTTP error taxonomy.
func (h *Handlers) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *orchestrator.ValidationError
		terr *lifecycle.InvalidTransitionError
	)
	switch {
	case errors.As(err, &verr):
		h.httpError(w, verr.Error(), api.CodeValidation, http.StatusBadRequest)
	case errors.As(err, &terr):
		h.respondJson(w, http.StatusBadRequest, api.ErrorResponse{
			Error:   terr.Error(),
			Code:    api.CodeInvalidTransition,
			Details: string(terr.From),
		})
	case errors.Is(err, orchestrator.ErrSessionNotFound),
		errors.Is(err, orchestrator.ErrFaultNotFound),
		errors.Is(err, access.ErrDesignNotFound):
		h.httpError(w, err.Error(), api.CodeNotFound, http.StatusNotFound)
	case errors.Is(err, access.ErrUnauthorized):
		h.httpError(w, "Could not validate credentials", api.CodeUnauthorized, http.StatusUnauthorized)
	case errors.Is(err, access.ErrForbidden):
		h.httpError(w, "Access to design denied", api.CodeForbidden, http.StatusForbidden)
	case errors.Is(err, access.ErrUpstreamUnavailable):
		logger.FromContext(r.Context(), h.logger).Warn("access collaborator unavailable", "error", err)
		h.httpError(w, "Access service unavailable", api.CodeUpstreamUnavailable, http.StatusBadGateway)
	default:
		logger.FromContext(r.Context(), h.logger).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		h.httpError(w, "Internal server error", api.CodeInternal, http.StatusInternalServerError)
	}
}

func (h *Handlers) badRequest(w http.ResponseWriter, message string) {
	h.httpError(w, message, api.CodeValidation, http.StatusBadRequest)
}

// pathID parses a uuid path parameter, answering 400 when malformed.
func (h *Handlers) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		h.badRequest(w, "Invalid "+name+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// subject returns the caller resolved by the auth middleware.
func (h *Handlers) subject(w http.ResponseWriter, r *http.Request) (access.Subject, bool) {
	s, ok := access.SubjectFromContext(r.Context())
	if !ok {
		h.httpError(w, "Could not validate credentials", api.CodeUnauthorized, http.StatusUnauthorized)
	}
	return s, ok
}

// decode reads a JSON body. An empty body is accepted when optional is set.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	if optional && r.ContentLength == 0 {
		return true
	}
	if err := store.DecodeDocument(r.Body, v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		h.badRequest(w, "Invalid request body")
		return false
	}
	return true
}

// queryPage reads skip and limit. An explicit limit must be at least 1.
func queryPage(r *http.Request) (orchestrator.Page, error) {
	var page orchestrator.Page
	q := r.URL.Query()

	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, &orchestrator.ValidationError{Field: "skip", Message: "must be an integer"}
		}
		page.Skip = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, &orchestrator.ValidationError{Field: "limit", Message: "must be an integer"}
		}
		if n < 1 {
			return page, &orchestrator.ValidationError{Field: "limit", Message: "must be greater than or equal to 1"}
		}
		page.Limit = n
	}
	return page, nil
}
