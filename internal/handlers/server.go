package handlers

import (
	"concord-backend/internal/models"
	"net/http"
)

func (h *Handler) CreateServer(w http.ResponseWriter, r *http.Request) {
	var req models.CreateServerRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	server, err := h.servers.CreateServer(r.Context(), user, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, server)
}

func (h *Handler) GetServer(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.urlID(w, r, "serverID")
	if !ok {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	server, err := h.servers.GetServer(r.Context(), user, serverID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, server)
}

func (h *Handler) ServerPreviews(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	previews, err := h.servers.ServerPreviews(r.Context(), user)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, previews)
}

func (h *Handler) UpdateServer(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.urlID(w, r, "serverID")
	if !ok {
		return
	}

	var req models.UpdateServerRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	server, err := h.servers.UpdateServer(r.Context(), user, serverID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, server)
}

func (h *Handler) DeleteServer(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.urlID(w, r, "serverID")
	if !ok {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	channelIDs, err := h.servers.DeleteServer(r.Context(), user, serverID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	err = h.messages.PurgeChannels(r.Context(), channelIDs)
	if err != nil {
		// the server is gone, leftover messages are unreachable
		h.sugar.Error(err)
	}

	w.WriteHeader(http.StatusNoContent)
}
