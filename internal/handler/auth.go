package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"itflow/internal/model"
	"itflow/internal/service"
	"itflow/internal/token"
)

const refreshCookie = "refresh"

type Authenticator interface {
	Authenticate(ctx context.Context, login, password string) (*model.User, error)
}

type TokenIssuer interface {
	Issue(ctx context.Context, u *model.User) (token.Pair, error)
	Consume(ctx context.Context, raw string) (*token.Claims, error)
	Revoke(ctx context.Context, raw string) error
	RefreshTTL() time.Duration
}

type UserGetter interface {
	Get(ctx context.Context, id int64) (*model.User, error)
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func setRefreshCookie(w http.ResponseWriter, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    value,
		Path:     "/api/token",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// refreshToken reads the refresh token from the JSON body, falling back to
// the cookie.
func refreshToken(r *http.Request) string {
	var req refreshRequest
	if r.Body != nil && r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Refresh != "" {
		return req.Refresh
	}
	if c, err := r.Cookie(refreshCookie); err == nil {
		return c.Value
	}
	return ""
}

func LoginHandler(auth Authenticator, tokens TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		login := req.Username
		if login == "" {
			login = req.Email
		}
		user, err := auth.Authenticate(r.Context(), login, req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}

		pair, err := tokens.Issue(r.Context(), user)
		if err != nil {
			writeError(w, r, err)
			return
		}

		setRefreshCookie(w, pair.Refresh, tokens.RefreshTTL())
		writeJSON(w, http.StatusOK, pair)
	}
}

func RefreshHandler(users UserGetter, tokens TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := refreshToken(r)
		if raw == "" {
			writeJSON(w, http.StatusBadRequest, service.ValidationError{"refresh": {"This field is required."}})
			return
		}

		claims, err := tokens.Consume(r.Context(), raw)
		if err != nil {
			writeError(w, r, err)
			return
		}

		user, err := users.Get(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, service.ErrUserNotFound) {
				err = token.ErrInvalid
			}
			writeError(w, r, err)
			return
		}

		pair, err := tokens.Issue(r.Context(), user)
		if err != nil {
			writeError(w, r, err)
			return
		}

		setRefreshCookie(w, pair.Refresh, tokens.RefreshTTL())
		writeJSON(w, http.StatusOK, pair)
	}
}

func LogoutHandler(tokens TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if raw := refreshToken(r); raw != "" {
			if err := tokens.Revoke(r.Context(), raw); err != nil && !errors.Is(err, token.ErrInvalid) {
				writeError(w, r, err)
				return
			}
		}
		setRefreshCookie(w, "", -time.Second)
		w.WriteHeader(http.StatusNoContent)
	}
}
