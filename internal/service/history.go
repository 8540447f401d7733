package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"itflow/internal/model"
)

// writeLog appends an entry to the order history on behalf of actor. It is
// called inside the transaction of the change it records.
func writeLog(ctx context.Context, q dbtx, e model.LogEntry, actor model.Actor) error {
	var actorID *int64
	if actor.ID != 0 {
		id := actor.ID
		actorID = &id
	}
	if e.EventType == "" {
		e.EventType = model.EventComment
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO order_logs (order_id, event_type, description, old_value, new_value, file_id, actor_id, actor_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.OrderID, e.EventType, e.Description, e.OldValue, e.NewValue, e.FileID, actorID, actor.Username,
	)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

func listLog(ctx context.Context, q dbtx, orderID int64) ([]model.LogEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, event_type, description, old_value, new_value, file_id, actor_id, actor_name, created_at
		FROM order_logs
		WHERE order_id = $1
		ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}
	defer rows.Close()

	entries := []model.LogEntry{}
	for rows.Next() {
		var (
			e                  model.LogEntry
			oldValue, newValue sql.NullString
			fileID, actorID    sql.NullInt64
		)
		err := rows.Scan(&e.ID, &e.OrderID, &e.EventType, &e.Description, &oldValue, &newValue,
			&fileID, &actorID, &e.ActorName, &e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.OldValue = nullString(oldValue)
		e.NewValue = nullString(newValue)
		e.FileID = nullInt(fileID)
		e.ActorID = nullInt(actorID)
		entries = append(entries, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return entries, nil
}

type HistoryService struct {
	db *sql.DB
}

func NewHistoryService(db *sql.DB) *HistoryService {
	return &HistoryService{db: db}
}

// History returns the order's log, oldest first.
func (s *HistoryService) History(ctx context.Context, actor model.Actor, orderID int64) ([]model.LogEntry, error) {
	if _, err := orderFor(ctx, s.db, actor, orderID, false); err != nil {
		return nil, err
	}
	return listLog(ctx, s.db, orderID)
}

func (s *HistoryService) Comment(ctx context.Context, actor model.Actor, orderID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ValidationError{"description": {requiredField}}
	}
	if _, err := orderFor(ctx, s.db, actor, orderID, false); err != nil {
		return err
	}
	return writeLog(ctx, s.db, model.LogEntry{
		OrderID:     orderID,
		EventType:   model.EventComment,
		Description: text,
	}, actor)
}
