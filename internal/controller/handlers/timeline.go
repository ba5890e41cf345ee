package handlers

import (
	"net/http"

	"simplane/internal/orchestrator"
	"simplane/pkg/api"
)

// InternalAppendEvent handles POST /internal/simulations/{id}/events.
func (h *Handlers) InternalAppendEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req api.CreateEventRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	if req.Timestamp == nil {
		h.badRequest(w, "timestamp: is required")
		return
	}

	event, err := h.svc.AppendEvent(r.Context(), id, orchestrator.EventInput{
		EventType:   req.EventType,
		ComponentID: req.ComponentID,
		Timestamp:   *req.Timestamp,
		Data:        req.Data,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.respondJson(w, http.StatusCreated, orchestrator.EventView(*event))
}

// ListEvents handles GET /simulations/{id}/events.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	page, err := queryPage(r)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	events, err := h.svc.ListEvents(r.Context(), subject, id, r.URL.Query().Get("component_id"), page)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	resp := make([]api.EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, orchestrator.EventView(e))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// InternalAppendMetric handles POST /internal/simulations/{id}/metrics.
func (h *Handlers) InternalAppendMetric(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req api.CreateMetricRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	if req.Timestamp == nil || req.Value == nil {
		h.badRequest(w, "timestamp and value are required")
		return
	}

	m, err := h.svc.AppendMetric(r.Context(), id, orchestrator.MetricInput{
		MetricName:  req.MetricName,
		ComponentID: req.ComponentID,
		Timestamp:   *req.Timestamp,
		Value:       *req.Value,
		Unit:        req.Unit,
		Tags:        req.Tags,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.respondJson(w, http.StatusCreated, orchestrator.MetricView(*m))
}

// ListMetrics handles GET /simulations/{id}/metrics.
func (h *Handlers) ListMetrics(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	page, err := queryPage(r)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	q := r.URL.Query()
	metrics, err := h.svc.ListMetrics(r.Context(), subject, id, q.Get("component_id"), q.Get("metric_name"), page)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	resp := make([]api.MetricResponse, 0, len(metrics))
	for _, m := range metrics {
		resp = append(resp, orchestrator.MetricView(m))
	}
	h.respondJson(w, http.StatusOK, resp)
}
