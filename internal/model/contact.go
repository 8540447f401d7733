package model

import "time"

type ContactMessage struct {
	ID              int64     `json:"id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email"`
	RequestMessage  string    `json:"request_message"`
	ResponseMessage *string   `json:"response_message"`
	IsAnswered      bool      `json:"is_answered"`
	CreatedAt       time.Time `json:"created_at"`
}

type ContactStats struct {
	Total      int `json:"total"`
	Answered   int `json:"answered"`
	Unanswered int `json:"unanswered"`
}
