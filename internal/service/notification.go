package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"itflow/internal/model"
)

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Mail struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// LogMailer only logs outgoing mail. It is used when no mail provider is
// configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, m Mail) error {
	slog.Info("mail not delivered, no provider configured",
		"to", m.To, "subject", m.Subject, "attachments", len(m.Attachments))
	return nil
}

// enqueue stores a notification in the outbox. Delivery happens later in
// the notification worker.
func enqueue(ctx context.Context, q dbtx, n model.Notification) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO notifications (order_id, recipient, subject, body) VALUES ($1, $2, $3, $4)`,
		n.OrderID, n.Recipient, n.Subject, n.Body,
	)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

func welcomeNotification(username, email string) model.Notification {
	return model.Notification{
		Recipient: email,
		Subject:   "Welcome to ITFlow",
		Body: fmt.Sprintf("Hi %s,\n\nYour ITFlow account has been created.\n\nThe ITFlow team\n",
			username),
	}
}

func orderCreatedNotification(o *model.Order, username, email string) model.Notification {
	orderID := o.ID
	return model.Notification{
		OrderID:   &orderID,
		Recipient: email,
		Subject:   fmt.Sprintf("Order #%d received", o.ID),
		Body: fmt.Sprintf("Hi %s,\n\nYour order %q has been submitted for review.\n"+
			"You will be notified about every status change.\n\nThe ITFlow team\n",
			username, o.Title),
	}
}

func roleChangeNotification(username, email string, groups []model.Role) model.Notification {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = string(g)
	}
	return model.Notification{
		Recipient: email,
		Subject:   "Your ITFlow roles have changed",
		Body: fmt.Sprintf("Hi %s,\n\nAn administrator changed your roles to: %s.\n"+
			"If you did not expect this, contact support.\n",
			username, strings.Join(names, ", ")),
	}
}

// userContact returns the username and e-mail of a user.
func userContact(ctx context.Context, q dbtx, id int64) (username, email string, err error) {
	err = q.QueryRowContext(ctx, `SELECT username, email FROM users WHERE id = $1`, id).Scan(&username, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrUserNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("query user contact: %w", err)
	}
	return username, email, nil
}

type NotificationService struct {
	db     *sql.DB
	mailer Mailer
}

func NewNotificationService(db *sql.DB, mailer Mailer) *NotificationService {
	return &NotificationService{db: db, mailer: mailer}
}

// FetchPending returns up to limit unsent notifications that have been tried
// fewer than maxAttempts times, oldest first.
func (s *NotificationService) FetchPending(ctx context.Context, limit, maxAttempts int) ([]model.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, recipient, subject, body, attempts, last_error, created_at
		FROM notifications
		WHERE sent_at IS NULL AND attempts < $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var (
			n       model.Notification
			orderID sql.NullInt64
		)
		err := rows.Scan(&n.ID, &orderID, &n.Recipient, &n.Subject, &n.Body, &n.Attempts, &n.LastError, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.OrderID = nullInt(orderID)
		out = append(out, n)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return out, nil
}

func (s *NotificationService) MarkSent(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET sent_at = NOW(), attempts = attempts + 1, last_error = '' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

func (s *NotificationService) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET attempts = attempts + 1, last_error = $1 WHERE id = $2`, reason, id)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	return nil
}

func (s *NotificationService) Send(ctx context.Context, m Mail) error {
	return s.mailer.Send(ctx, m)
}

type OrderEmailInput struct {
	Subject    string
	Message    string
	Attachment *Attachment
}

// SendOrderEmail mails the order's client directly, bypassing the outbox,
// and records the delivery in the order history.
func (s *NotificationService) SendOrderEmail(ctx context.Context, actor model.Actor, orderID int64, in OrderEmailInput) error {
	if actor.Role != model.RoleManager && actor.Role != model.RoleProgrammer {
		return ErrForbidden
	}

	in.Subject = strings.TrimSpace(in.Subject)
	in.Message = strings.TrimSpace(in.Message)
	verr := ValidationError{}
	if in.Subject == "" {
		verr.add("subject", requiredField)
	}
	if in.Message == "" {
		verr.add("message", requiredField)
	}
	if in.Attachment == nil || len(in.Attachment.Content) == 0 {
		verr.add("file_attachment", requiredField)
	}
	if err := verr.err(); err != nil {
		return err
	}

	if _, err := orderFor(ctx, s.db, actor, orderID, false); err != nil {
		return err
	}

	var email string
	err := s.db.QueryRowContext(ctx,
		`SELECT u.email FROM orders o JOIN users u ON u.id = o.client_id WHERE o.id = $1`, orderID,
	).Scan(&email)
	if err != nil {
		return fmt.Errorf("get client email: %w", err)
	}
	if email == "" {
		return ErrNoRecipient
	}

	err = s.mailer.Send(ctx, Mail{
		To:          email,
		Subject:     in.Subject,
		Body:        in.Message,
		Attachments: []Attachment{*in.Attachment},
	})
	if err != nil {
		return fmt.Errorf("send order email: %w", err)
	}

	return writeLog(ctx, s.db, model.LogEntry{
		OrderID:     orderID,
		EventType:   model.EventComment,
		Description: "Email sent: " + in.Subject,
	}, actor)
}
