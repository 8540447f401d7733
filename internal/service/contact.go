package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"itflow/internal/database"
	"itflow/internal/model"
)

const contactSelect = `
	SELECT id, first_name, last_name, email, request_message, response_message, is_answered, created_at
	FROM contact_messages
`

func scanContact(row rowScanner) (*model.ContactMessage, error) {
	var (
		m        model.ContactMessage
		response sql.NullString
	)
	err := row.Scan(&m.ID, &m.FirstName, &m.LastName, &m.Email, &m.RequestMessage, &response, &m.IsAnswered, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.ResponseMessage = nullString(response)
	return &m, nil
}

type ContactService struct {
	db *sql.DB
}

func NewContactService(db *sql.DB) *ContactService {
	return &ContactService{db: db}
}

type ContactInput struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	RequestMessage string `json:"request_message"`
}

func (in *ContactInput) validate() error {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	in.RequestMessage = strings.TrimSpace(in.RequestMessage)

	verr := ValidationError{}
	if in.FirstName == "" {
		verr.add("first_name", requiredField)
	}
	if in.LastName == "" {
		verr.add("last_name", requiredField)
	}
	if in.Email == "" {
		verr.add("email", requiredField)
	} else if _, err := mail.ParseAddress(in.Email); err != nil {
		verr.add("email", "Enter a valid email address.")
	}
	if in.RequestMessage == "" {
		verr.add("request_message", requiredField)
	}
	return verr.err()
}

// Create stores a message from the public contact form.
func (s *ContactService) Create(ctx context.Context, in ContactInput) (*model.ContactMessage, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO contact_messages (first_name, last_name, email, request_message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, first_name, last_name, email, request_message, response_message, is_answered, created_at`,
		in.FirstName, in.LastName, in.Email, in.RequestMessage,
	)
	m, err := scanContact(row)
	if err != nil {
		return nil, fmt.Errorf("insert contact message: %w", err)
	}
	return m, nil
}

func (s *ContactService) query(ctx context.Context, where string, args ...any) ([]model.ContactMessage, error) {
	rows, err := s.db.QueryContext(ctx, contactSelect+where+" ORDER BY created_at DESC, id DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("query contact messages: %w", err)
	}
	defer rows.Close()

	messages := []model.ContactMessage{}
	for rows.Next() {
		m, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact message: %w", err)
		}
		messages = append(messages, *m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return messages, nil
}

// List returns every message, optionally filtered by answered state.
func (s *ContactService) List(ctx context.Context, actor model.Actor, answered *bool) ([]model.ContactMessage, error) {
	if actor.Role != model.RoleManager {
		return nil, ErrForbidden
	}
	if answered != nil {
		return s.query(ctx, " WHERE is_answered = $1", *answered)
	}
	return s.query(ctx, "")
}

// Mine returns the messages sent from the caller's e-mail address.
func (s *ContactService) Mine(ctx context.Context, actor model.Actor) ([]model.ContactMessage, error) {
	if actor.Email == "" {
		return []model.ContactMessage{}, nil
	}
	return s.query(ctx, " WHERE lower(email) = lower($1)", actor.Email)
}

func (s *ContactService) get(ctx context.Context, q dbtx, id int64, lock bool) (*model.ContactMessage, error) {
	query := contactSelect + " WHERE id = $1"
	if lock {
		query += " FOR UPDATE"
	}
	m, err := scanContact(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("get contact message: %w", err)
	}
	return m, nil
}

func (s *ContactService) Get(ctx context.Context, actor model.Actor, id int64) (*model.ContactMessage, error) {
	m, err := s.get(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleManager && !strings.EqualFold(actor.Email, m.Email) {
		return nil, ErrForbidden
	}
	return m, nil
}

// Respond stores the answer and queues it for delivery to the requester.
func (s *ContactService) Respond(ctx context.Context, actor model.Actor, id int64, text string) (*model.ContactMessage, error) {
	if actor.Role != model.RoleManager {
		return nil, ErrForbidden
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ValidationError{"response_message": {requiredField}}
	}

	var msg *model.ContactMessage
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		m, err := s.get(ctx, tx, id, true)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE contact_messages SET response_message = $1, is_answered = TRUE WHERE id = $2`, text, id)
		if err != nil {
			return fmt.Errorf("update contact message: %w", err)
		}
		m.ResponseMessage = &text
		m.IsAnswered = true
		msg = m

		body := fmt.Sprintf("Hello %s,\n\n%s\n\n----\nYour message:\n%s\n", m.FirstName, text, m.RequestMessage)
		return enqueue(ctx, tx, model.Notification{
			Recipient: m.Email,
			Subject:   "Re: your message to ITFlow",
			Body:      body,
		})
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *ContactService) Delete(ctx context.Context, actor model.Actor, id int64) error {
	if actor.Role != model.RoleManager {
		return ErrForbidden
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM contact_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete contact message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (s *ContactService) Stats(ctx context.Context, actor model.Actor) (*model.ContactStats, error) {
	if actor.Role != model.RoleManager {
		return nil, ErrForbidden
	}
	var st model.ContactStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_answered), COUNT(*) FILTER (WHERE NOT is_answered)
		FROM contact_messages`,
	).Scan(&st.Total, &st.Answered, &st.Unanswered)
	if err != nil {
		return nil, fmt.Errorf("contact stats: %w", err)
	}
	return &st, nil
}
