package model

import "time"

type Notification struct {
	ID        int64
	OrderID   *int64
	Recipient string
	Subject   string
	Body      string
	Attempts  int
	LastError string
	SentAt    *time.Time
	CreatedAt time.Time
}
