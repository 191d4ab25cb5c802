package handlers

import (
	"concord-backend/internal/models"
	"net/http"
)

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var login models.LoginRequest
	if !h.decode(w, r, &login) {
		return
	}

	user, err := h.users.Authenticate(r.Context(), login.Email, login.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	cookie, err := h.jwt.CreateToken(r.URL.Query().Get("rememberMe") == "true", user.ID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &cookie)
	h.writeJSON(w, http.StatusOK, user.Public())
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var registration models.RegisterRequest
	if !h.decode(w, r, &registration) {
		return
	}

	user, err := h.users.Register(r.Context(), registration)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, user.Public())
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie := h.jwt.ExpiredCookie()
	http.SetCookie(w, &cookie)
	w.WriteHeader(http.StatusOK)
}
