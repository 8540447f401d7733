package model

import (
	"time"
)

type Status string

const (
	StatusSubmitted       Status = "submitted"
	StatusAccepted        Status = "accepted"
	StatusInProgress      Status = "in_progress"
	StatusClientReview    Status = "client_review"
	StatusAwaitingReview  Status = "awaiting_review"
	StatusClientFix       Status = "client_fix"
	StatusReworkRequested Status = "rework_requested"
	StatusDone            Status = "done"
	StatusRejected        Status = "rejected"
)

type Order struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Status          Status    `json:"status"`
	ClientID        int64     `json:"client"`
	ManagerID       *int64    `json:"manager"`
	DeveloperID     *int64    `json:"developer"`
	ClientDetail    *string   `json:"client_detail"`
	ManagerDetail   *string   `json:"manager_detail"`
	DeveloperDetail *string   `json:"developer_detail"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (o *Order) AssignedTo(userID int64) bool {
	return o.DeveloperID != nil && *o.DeveloperID == userID
}
