// Package middleware contains HTTP middleware for the orchestrator API.
package middleware

import (
	"encoding/json"
	"net/http"

	"simplane/pkg/api"
)

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: message, Code: code})
}
