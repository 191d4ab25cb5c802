package handlers

import (
	"net/http"
)

// Health answers once the process is serving. It touches no storage.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
