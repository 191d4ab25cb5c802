package handlers

import "net/http"

func (h *Handler) GetSelf(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, user.Public())
}
