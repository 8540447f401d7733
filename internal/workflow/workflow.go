// Package workflow holds the order status state machine: which role may move
// an order from which status to which status.
package workflow

import (
	"errors"
	"fmt"

	"itflow/internal/model"
)

var (
	ErrUnknownStatus    = errors.New("unknown status")
	ErrTransitionDenied = errors.New("transition not allowed")
	ErrNotAssigned      = errors.New("order is not assigned to this programmer")
	ErrNotOwner         = errors.New("order does not belong to this client")
	ErrUnchanged        = errors.New("status unchanged")
)

var labels = map[model.Status]string{
	model.StatusSubmitted:       "Submitted",
	model.StatusAccepted:        "Accepted",
	model.StatusInProgress:      "In progress",
	model.StatusClientReview:    "Internal review",
	model.StatusAwaitingReview:  "Awaiting client verification",
	model.StatusClientFix:       "Fix requested by client",
	model.StatusReworkRequested: "Sent back for rework",
	model.StatusDone:            "Done",
	model.StatusRejected:        "Rejected",
}

var transitions = map[model.Role]map[model.Status][]model.Status{
	model.RoleManager: {
		model.StatusSubmitted:      {model.StatusAccepted, model.StatusRejected},
		model.StatusClientReview:   {model.StatusAwaitingReview},
		model.StatusAwaitingReview: {model.StatusInProgress},
		model.StatusClientFix:      {model.StatusReworkRequested},
	},
	model.RoleProgrammer: {
		model.StatusAccepted:        {model.StatusInProgress},
		model.StatusInProgress:      {model.StatusClientReview},
		model.StatusReworkRequested: {model.StatusInProgress},
	},
	model.RoleClient: {
		model.StatusAwaitingReview: {model.StatusDone, model.StatusClientFix},
	},
}

// Statuses lists every status in workflow order.
func Statuses() []model.Status {
	return []model.Status{
		model.StatusSubmitted,
		model.StatusAccepted,
		model.StatusInProgress,
		model.StatusClientReview,
		model.StatusAwaitingReview,
		model.StatusClientFix,
		model.StatusReworkRequested,
		model.StatusDone,
		model.StatusRejected,
	}
}

func Parse(s string) (model.Status, error) {
	st := model.Status(s)
	if _, ok := labels[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func Label(s model.Status) string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

func Terminal(s model.Status) bool {
	return s == model.StatusDone || s == model.StatusRejected
}

// Allowed returns the statuses role may move an order to from the given status.
func Allowed(role model.Role, from model.Status) []model.Status {
	targets := transitions[role][from]
	out := make([]model.Status, len(targets))
	copy(out, targets)
	return out
}

func allowed(role model.Role, from, to model.Status) bool {
	for _, s := range transitions[role][from] {
		if s == to {
			return true
		}
	}
	return false
}

// Authorize decides whether actor may move o to the target status.
// A manager re-setting the current status gets ErrUnchanged, which callers
// treat as a no-op.
func Authorize(actor model.Actor, o *model.Order, to model.Status) error {
	if _, ok := labels[to]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}

	switch actor.Role {
	case model.RoleManager:
		if to == o.Status {
			return ErrUnchanged
		}
	case model.RoleProgrammer:
		if !o.AssignedTo(actor.ID) {
			return ErrNotAssigned
		}
	case model.RoleClient:
		if o.ClientID != actor.ID {
			return ErrNotOwner
		}
	default:
		return ErrTransitionDenied
	}

	if !allowed(actor.Role, o.Status, to) {
		return fmt.Errorf("%w: %s cannot move %q to %q", ErrTransitionDenied, actor.Role, o.Status, to)
	}
	return nil
}

// Available lists what actor may do with o right now, honouring ownership.
func Available(actor model.Actor, o *model.Order) []model.Status {
	switch actor.Role {
	case model.RoleProgrammer:
		if !o.AssignedTo(actor.ID) {
			return []model.Status{}
		}
	case model.RoleClient:
		if o.ClientID != actor.ID {
			return []model.Status{}
		}
	}
	return Allowed(actor.Role, o.Status)
}
