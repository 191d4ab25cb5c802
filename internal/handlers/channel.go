package handlers

import (
	"concord-backend/internal/models"
	"net/http"
)

func (h *Handler) GetHierarchy(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.urlID(w, r, "serverID")
	if !ok {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	hierarchy, err := h.hierarchy.GetHierarchy(r.Context(), user, serverID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, hierarchy)
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.urlID(w, r, "serverID")
	if !ok {
		return
	}

	var req models.CreateGroupRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	hierarchy, err := h.hierarchy.CreateGroup(r.Context(), user, serverID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, hierarchy)
}

func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.urlID(w, r, "serverID")
	if !ok {
		return
	}
	groupID, ok := h.urlID(w, r, "groupID")
	if !ok {
		return
	}

	var req models.UpdateGroupRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	hierarchy, err := h.hierarchy.UpdateGroup(r.Context(), user, serverID, groupID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, hierarchy)
}

// DeleteGroup keeps the group's channels unless ?cascade=true is given.
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.urlID(w, r, "serverID")
	if !ok {
		return
	}
	groupID, ok := h.urlID(w, r, "groupID")
	if !ok {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	cascade := r.URL.Query().Get("cascade") == "true"

	hierarchy, removed, err := h.hierarchy.DeleteGroup(r.Context(), user, serverID, groupID, cascade)
	if err != nil {
		h.writeError(w, err)
		return
	}

	err = h.messages.PurgeChannels(r.Context(), removed)
	if err != nil {
		h.sugar.Error(err)
	}

	h.writeJSON(w, http.StatusOK, hierarchy)
}

func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.urlID(w, r, "serverID")
	if !ok {
		return
	}

	var req models.CreateChannelRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	hierarchy, err := h.hierarchy.CreateChannel(r.Context(), user, serverID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, hierarchy)
}

func (h *Handler) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.urlID(w, r, "serverID")
	if !ok {
		return
	}
	groupID, ok := h.urlID(w, r, "groupID")
	if !ok {
		return
	}
	channelID, ok := h.urlID(w, r, "channelID")
	if !ok {
		return
	}

	var req models.UpdateChannelRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.GroupID = groupID
	req.ChannelID = channelID

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	hierarchy, err := h.hierarchy.UpdateChannel(r.Context(), user, serverID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, hierarchy)
}

func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.urlID(w, r, "serverID")
	if !ok {
		return
	}
	groupID, ok := h.urlID(w, r, "groupID")
	if !ok {
		return
	}
	channelID, ok := h.urlID(w, r, "channelID")
	if !ok {
		return
	}

	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	hierarchy, err := h.hierarchy.DeleteChannel(r.Context(), user, serverID, groupID, channelID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	err = h.messages.PurgeChannels(r.Context(), []int64{channelID})
	if err != nil {
		h.sugar.Error(err)
	}

	h.writeJSON(w, http.StatusOK, hierarchy)
}
