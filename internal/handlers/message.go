package handlers

import (
	"concord-backend/internal/models"
	"net/http"
	"strconv"
)

func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.urlID(w, r, "serverID")
	if !ok {
		return
	}

	var req models.PostMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	msg, err := h.messages.PostMessage(r.Context(), user, serverID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, msg)
}

// GetMessages serves the newest page, or the page older than ?before=<id>.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.urlID(w, r, "serverID")
	if !ok {
		return
	}
	channelID, ok := h.urlID(w, r, "channelID")
	if !ok {
		return
	}

	var cursor *int64
	if before := r.URL.Query().Get("before"); before != "" {
		id, err := strconv.ParseInt(before, 10, 64)
		if err != nil {
			h.sugar.Debug(err)
			http.Error(w, "Invalid before", http.StatusBadRequest)
			return
		}
		cursor = &id
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	page, err := h.messages.GetMessages(r.Context(), user, serverID, channelID, cursor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if page == nil {
		page = []models.Message{}
	}

	h.writeJSON(w, http.StatusOK, page)
}
