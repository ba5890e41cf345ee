package handlers

import (
	"net/http"

	"simplane/internal/orchestrator"
	"simplane/internal/store"
	"simplane/pkg/api"

	"github.com/google/uuid"
)

// CreateSession handles POST /simulations.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}

	var req api.CreateSessionRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	designID, err := uuid.Parse(req.DesignID)
	if err != nil {
		h.badRequest(w, "design_id: must be a UUID")
		return
	}

	session, err := h.svc.CreateSession(r.Context(), subject, orchestrator.CreateSessionInput{
		DesignID:      designID,
		Name:          req.Name,
		Description:   req.Description,
		Configuration: req.Configuration,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.respondJson(w, http.StatusCreated, orchestrator.SessionView(*session))
}

// ListSessions handles GET /simulations. With design_id it lists that
// design's sessions, otherwise the caller's own.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}

	page, err := queryPage(r)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	var designID *uuid.UUID
	if v := r.URL.Query().Get("design_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			h.badRequest(w, "design_id: must be a UUID")
			return
		}
		designID = &id
	}

	sessions, err := h.svc.ListSessions(r.Context(), subject, designID, page)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	resp := make([]api.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, orchestrator.SessionView(s))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// GetSession handles GET /simulations/{id}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	details, err := h.svc.GetSessionDetails(r.Context(), subject, id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.respondJson(w, http.StatusOK, orchestrator.SessionDetailsView(*details))
}

// UpdateSession handles PUT /simulations/{id}.
func (h *Handlers) UpdateSession(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req api.UpdateSessionRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	session, err := h.svc.UpdateSession(r.Context(), subject, id, store.SessionUpdate{
		Name:          req.Name,
		Description:   req.Description,
		Configuration: req.Configuration,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.respondJson(w, http.StatusOK, orchestrator.SessionView(*session))
}

// DeleteSession handles DELETE /simulations/{id}.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteSession(r.Context(), subject, id); err != nil {
		h.serviceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
