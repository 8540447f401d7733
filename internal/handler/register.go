package handler

import (
	"context"
	"net/http"

	"itflow/internal/model"
	"itflow/internal/service"
)

type Registrar interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
}

func RegisterHandler(auth Registrar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.RegisterInput
		if !decodeJSON(w, r, &req) {
			return
		}

		user, err := auth.Register(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, user)
	}
}
