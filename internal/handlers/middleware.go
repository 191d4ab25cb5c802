package handlers

import (
	"concord-backend/internal/jwt"
	"concord-backend/internal/models"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type UserIDKeyType struct{}

func userIDFrom(ctx context.Context) int64 {
	return ctx.Value(UserIDKeyType{}).(int64)
}

func (h *Handler) UserVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwtCookie, err := r.Cookie(jwt.CookieName)
		if err != nil {
			h.sugar.Debug(err)
			switch {
			case errors.Is(err, http.ErrNoCookie):
				http.Error(w, "No jwt cookie was provided", http.StatusUnauthorized)
			default:
				http.Error(w, "Couldn't read jwt cookie", http.StatusInternalServerError)
			}
			return
		}

		userToken, err := h.jwt.VerifyToken(jwtCookie.Value)
		if err != nil {
			h.sugar.Debug(err)
			http.Error(w, "Couldn't verify JWT", http.StatusUnauthorized)
			return
		}

		// check if user exists
		key := fmt.Sprintf("user_exists:%d", userToken.UserID)

		userFound := false

		value, err := h.kv.Get(r.Context(), key)
		if err != nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}

		if value == "" { // user isn't cached
			userFound, err = h.users.Exists(r.Context(), userToken.UserID)
			if err != nil {
				h.sugar.Error(err)
				http.Error(w, "", http.StatusInternalServerError)
				return
			}
			if userFound {
				err = h.kv.Set(r.Context(), key, "y", 15*time.Minute)
				if err != nil {
					h.sugar.Error(err)
					http.Error(w, "", http.StatusInternalServerError)
					return
				}
				h.sugar.Debugf("User ID %d was found in database and was cached", userToken.UserID)
			} else {
				h.sugar.Warnf("User ID %d was not found in database", userToken.UserID)
			}
		} else {
			userFound = true
		}

		// the account is gone but the client kept its token
		if !userFound {
			expired := h.jwt.ExpiredCookie()
			http.SetCookie(w, &expired)
			http.Error(w, "", http.StatusUnauthorized)
			return
		}

		// renew JWT and cookie
		timeSinceLast := time.Now().UTC().Sub(userToken.IssuedAt.Time)

		if timeSinceLast >= 15*time.Minute {
			updatedCookie, err := h.jwt.CreateToken(userToken.Remember, userToken.UserID)
			if err != nil {
				h.sugar.Error(err)
				http.Error(w, "Couldn't renew cookie", http.StatusInternalServerError)
				return
			}

			http.SetCookie(w, &updatedCookie)
		}

		// this passes the authenticated user's ID to next handler
		ctx := context.WithValue(r.Context(), UserIDKeyType{}, userToken.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// caller loads the authenticated user. On failure it has already answered
// the request.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, err := h.users.Get(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return user, true
}
