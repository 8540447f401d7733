package model

import "time"

type EventType string

const (
	EventStatusChange EventType = "status_change"
	EventComment      EventType = "comment"
	EventFileAdded    EventType = "file_added"
	EventAssignment   EventType = "assignment"
	EventOther        EventType = "other"
)

type LogEntry struct {
	ID          int64     `json:"id"`
	OrderID     int64     `json:"order"`
	EventType   EventType `json:"event_type"`
	Description string    `json:"description"`
	OldValue    *string   `json:"old_value"`
	NewValue    *string   `json:"new_value"`
	FileID      *int64    `json:"file"`
	ActorID     *int64    `json:"actor"`
	ActorName   string    `json:"actor_name"`
	Timestamp   time.Time `json:"timestamp"`
}
