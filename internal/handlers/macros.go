package handlers

import (
	"concord-backend/internal/apperr"
	"concord-backend/internal/validator"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.sugar.Error(err)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInvariantViolation), errors.Is(err, apperr.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the status of a domain error. Anything else is
// logged and hidden behind a bare 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if !apperr.IsDomain(err) {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	h.sugar.Debug(err)
	h.writeJSON(w, statusOf(err), map[string]string{"error": err.Error()})
}

// decode reads a json body into dst and validates it. On failure it has
// already answered the request and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return false
	}

	err = h.validate.Struct(dst)
	if err != nil {
		fields := validator.FieldErrors(err)
		if fields == nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return false
		}

		// sends back 400 with the form field errors
		h.writeJSON(w, http.StatusBadRequest, fields)
		return false
	}
	return true
}

func (h *Handler) urlID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
