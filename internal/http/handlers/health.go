package handlers

import "net/http"

// Healthz reports process liveness.
// Routes: GET /healthz, GET /healthz-unified
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
