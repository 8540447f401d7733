package handler

import (
	"context"
	"net/http"

	"itflow/internal/model"
	"itflow/internal/service"
	"itflow/internal/workflow"
)

type OrderStore interface {
	Create(ctx context.Context, actor model.Actor, in service.CreateOrderInput) (*model.Order, error)
	List(ctx context.Context, actor model.Actor) ([]model.Order, error)
	Get(ctx context.Context, actor model.Actor, id int64) (*model.Order, error)
	Transitions(ctx context.Context, actor model.Actor, id int64) ([]model.Status, error)
	ChangeStatus(ctx context.Context, actor model.Actor, id int64, status string) (*model.Order, error)
	AssignDeveloper(ctx context.Context, actor model.Actor, id int64, developerID *int64) (*model.Order, error)
}

type statusOption struct {
	Value model.Status `json:"value"`
	Label string       `json:"label"`
}

func ListOrdersHandler(orders OrderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		list, err := orders.List(r.Context(), actor)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func CreateOrderHandler(orders OrderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req service.CreateOrderInput
		if !decodeJSON(w, r, &req) {
			return
		}

		o, err := orders.Create(r.Context(), actor, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, o)
	}
}

func GetOrderHandler(orders OrderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		o, err := orders.Get(r.Context(), actor, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func TransitionsHandler(orders OrderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		statuses, err := orders.Transitions(r.Context(), actor, id)
		if err != nil {
			writeError(w, r, err)
			return
		}

		out := make([]statusOption, 0, len(statuses))
		for _, s := range statuses {
			out = append(out, statusOption{Value: s, Label: workflow.Label(s)})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

func ChangeStatusHandler(orders OrderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		var req changeStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Status == "" {
			writeJSON(w, http.StatusBadRequest, service.ValidationError{"status": {"This field is required."}})
			return
		}

		o, err := orders.ChangeStatus(r.Context(), actor, id, req.Status)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

type assignDeveloperRequest struct {
	Developer *int64 `json:"developer"`
}

func AssignDeveloperHandler(orders OrderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		var req assignDeveloperRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		o, err := orders.AssignDeveloper(r.Context(), actor, id, req.Developer)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}
