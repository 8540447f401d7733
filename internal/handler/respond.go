package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"itflow/internal/model"
	"itflow/internal/mw"
	"itflow/internal/service"
	"itflow/internal/storage"
	"itflow/internal/token"
	"itflow/internal/workflow"
)

type detail struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, detail{Detail: msg})
}

// writeError maps service errors to HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, verr)
	case errors.Is(err, workflow.ErrUnknownStatus):
		writeJSON(w, http.StatusBadRequest, map[string][]string{"status": {err.Error()}})
	case errors.Is(err, service.ErrInvalidCredentials):
		writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
	case errors.Is(err, token.ErrInvalid), errors.Is(err, token.ErrRevoked):
		writeDetail(w, http.StatusUnauthorized, "Token is invalid or expired")
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrFileHidden),
		errors.Is(err, workflow.ErrTransitionDenied),
		errors.Is(err, workflow.ErrNotAssigned),
		errors.Is(err, workflow.ErrNotOwner):
		writeDetail(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrFileNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, storage.ErrNotFound):
		writeDetail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUsernameTaken):
		writeJSON(w, http.StatusConflict, map[string][]string{"username": {"A user with that username already exists."}})
	case errors.Is(err, service.ErrFileTooLarge):
		writeDetail(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrNoRecipient):
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
		writeDetail(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return id, true
}

func actorFrom(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := mw.ActorFrom(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "unauthorized")
	}
	return actor, ok
}

type messageResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}
