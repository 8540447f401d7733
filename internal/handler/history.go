package handler

import (
	"context"
	"net/http"

	"itflow/internal/model"
)

type HistoryStore interface {
	History(ctx context.Context, actor model.Actor, orderID int64) ([]model.LogEntry, error)
	Comment(ctx context.Context, actor model.Actor, orderID int64, text string) error
}

func HistoryHandler(history HistoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		orderID, ok := idParam(w, r, "orderID")
		if !ok {
			return
		}

		entries, err := history.History(r.Context(), actor, orderID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

type commentRequest struct {
	Description string `json:"description"`
}

func CommentHandler(history HistoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		orderID, ok := idParam(w, r, "orderID")
		if !ok {
			return
		}

		var req commentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if err := history.Comment(r.Context(), actor, orderID, req.Description); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, messageResponse{Message: "Comment added"})
	}
}
