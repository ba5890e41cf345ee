package handlers

import (
	"net/http"

	"simplane/internal/orchestrator"
	"simplane/internal/store"
	"simplane/pkg/api"
)

// ScheduleFault handles POST /simulations/{id}/faults.
func (h *Handlers) ScheduleFault(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req api.ScheduleFaultRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	if req.StartTime == nil {
		h.badRequest(w, "start_time: is required")
		return
	}

	fault, err := h.svc.ScheduleFault(r.Context(), subject, id, orchestrator.FaultInput{
		FaultType:       req.FaultType,
		TargetComponent: req.TargetComponent,
		Parameters:      req.Parameters,
		StartTime:       *req.StartTime,
		Duration:        req.Duration,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.respondJson(w, http.StatusCreated, orchestrator.FaultView(*fault))
}

// ListFaults handles GET /simulations/{id}/faults.
func (h *Handlers) ListFaults(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	faults, err := h.svc.ListFaults(r.Context(), subject, id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	resp := make([]api.FaultResponse, 0, len(faults))
	for _, f := range faults {
		resp = append(resp, orchestrator.FaultView(f))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// DeleteFault handles DELETE /simulations/{id}/faults/{fault_id}.
func (h *Handlers) DeleteFault(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	faultID, ok := h.pathID(w, r, "fault_id")
	if !ok {
		return
	}

	if err := h.svc.DeleteFault(r.Context(), subject, id, faultID); err != nil {
		h.serviceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// InternalUpdateFaultStatus handles PUT /internal/faults/{id}/status.
// Called by the simulation runtime as a fault progresses.
func (h *Handlers) InternalUpdateFaultStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req api.UpdateFaultStatusRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	fault, err := h.svc.UpdateFaultStatus(r.Context(), id, store.FaultStatus(req.Status))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.respondJson(w, http.StatusOK, orchestrator.FaultView(*fault))
}
