package handler

import (
	"context"
	"net/http"

	"itflow/internal/model"
	"itflow/internal/service"
)

type UserStore interface {
	Get(ctx context.Context, id int64) (*model.User, error)
	Update(ctx context.Context, id int64, in service.UpdateUserInput) (*model.User, error)
	Dashboard(ctx context.Context, id int64) (*service.Dashboard, error)
	Programmers(ctx context.Context) ([]model.User, error)
}

func MeHandler(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		user, err := users.Get(r.Context(), actor.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// UpdateMeHandler serves both PUT and PATCH; absent fields are left as they are.
func UpdateMeHandler(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req service.UpdateUserInput
		if !decodeJSON(w, r, &req) {
			return
		}

		user, err := users.Update(r.Context(), actor.ID, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func DashboardHandler(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		d, err := users.Dashboard(r.Context(), actor.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func ProgrammersHandler(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := users.Programmers(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
