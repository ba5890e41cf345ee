package handlers

import (
	"context"
	"net/http"

	"simplane/internal/access"
	"simplane/internal/orchestrator"
	"simplane/internal/store"
	"simplane/pkg/api"

	"github.com/google/uuid"
)

type transitionFunc func(ctx context.Context, subject access.Subject, id uuid.UUID) (*store.Session, error)

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	session, err := fn(r.Context(), subject, id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.respondJson(w, http.StatusOK, orchestrator.SessionView(*session))
}

// StartSession handles POST /simulations/{id}/start.
func (h *Handlers) StartSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.StartSession)
}

// PauseSession handles POST /simulations/{id}/pause.
func (h *Handlers) PauseSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.PauseSession)
}

// ResumeSession handles POST /simulations/{id}/resume.
func (h *Handlers) ResumeSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.ResumeSession)
}

// StopSession handles POST /simulations/{id}/stop. The body is optional and
// may carry the run's results.
func (h *Handlers) StopSession(w http.ResponseWriter, r *http.Request) {
	var req api.StopSessionRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	h.transition(w, r, func(ctx context.Context, subject access.Subject, id uuid.UUID) (*store.Session, error) {
		return h.svc.StopSession(ctx, subject, id, req.Results)
	})
}

// InternalReportFailure handles POST /internal/simulations/{id}/fail.
// Called by the simulation runtime when a run crashes.
func (h *Handlers) InternalReportFailure(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req api.ReportFailureRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	session, err := h.svc.ReportFailure(r.Context(), id, req.Error, req.Results)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.respondJson(w, http.StatusOK, orchestrator.SessionView(*session))
}
