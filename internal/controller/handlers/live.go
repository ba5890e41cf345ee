package handlers

import (
	"net/http"

	"simplane/internal/broadcast"
	"simplane/internal/logger"
)

// Live handles GET /simulations/{id}/ws. The caller must be allowed to read
// the session; the connection then receives every broadcast for it until it
// disconnects or idles out.
func (h *Handlers) Live(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.svc.GetSession(r.Context(), subject, id); err != nil {
		h.serviceError(w, r, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		return
	}

	log := logger.FromContext(r.Context(), h.logger).With("session_id", id)
	log.Info("live subscriber connected", "subscribers", h.live.Count(id)+1)

	if err := broadcast.Serve(r.Context(), h.live, id, ws, h.liveOpts); err != nil {
		log.Info("live subscriber disconnected", "error", err)
		return
	}
	log.Info("live subscriber disconnected")
}
