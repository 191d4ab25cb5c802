package handlers

import (
	"concord-backend/internal/models"
	"net/http"
)

func (h *Handler) JoinServer(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.urlID(w, r, "serverID")
	if !ok {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	server, err := h.servers.JoinServer(r.Context(), user, serverID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, server)
}

func (h *Handler) LeaveServer(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.urlID(w, r, "serverID")
	if !ok {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	result, err := h.servers.LeaveServer(r.Context(), user, serverID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if !result.Changed {
		h.sugar.Debugf("User ID %d was not in server ID %d", user.ID, serverID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RefuseInvite(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.urlID(w, r, "serverID")
	if !ok {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	err := h.servers.RefuseInvite(r.Context(), user, serverID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) InviteToServer(w http.ResponseWriter, r *http.Request) {
	var req models.UserAndServerRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	membership, err := h.servers.InviteToServer(r.Context(), user, req.ServerID, req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, membership)
}

func (h *Handler) AddOwner(w http.ResponseWriter, r *http.Request) {
	var req models.UserAndServerRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	server, err := h.servers.AddOwner(r.Context(), user, req.ServerID, req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, server)
}

func (h *Handler) RemoveOwner(w http.ResponseWriter, r *http.Request) {
	var req models.UserAndServerRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	server, err := h.servers.RemoveOwner(r.Context(), user, req.ServerID, req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, server)
}
