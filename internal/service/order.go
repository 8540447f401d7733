package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"itflow/internal/database"
	"itflow/internal/metrics"
	"itflow/internal/model"
	"itflow/internal/workflow"
)

const maxTitleLen = 100

const orderSelect = `
	SELECT o.id, o.title, o.description, o.status, o.client_id, o.manager_id, o.developer_id,
	       c.username, m.username, d.username, o.created_at, o.updated_at
	FROM orders o
	JOIN users c ON c.id = o.client_id
	LEFT JOIN users m ON m.id = o.manager_id
	LEFT JOIN users d ON d.id = o.developer_id
`

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o                model.Order
		managerID, devID sql.NullInt64
		client, mgr, dev sql.NullString
	)
	err := row.Scan(&o.ID, &o.Title, &o.Description, &o.Status, &o.ClientID, &managerID, &devID,
		&client, &mgr, &dev, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.ManagerID = nullInt(managerID)
	o.DeveloperID = nullInt(devID)
	o.ClientDetail = nullString(client)
	o.ManagerDetail = nullString(mgr)
	o.DeveloperDetail = nullString(dev)
	return &o, nil
}

// scopeFilter appends the visibility condition for actor to args: managers
// see every order, programmers the ones assigned to them, clients their own.
func scopeFilter(actor model.Actor, args []any) (string, []any) {
	switch actor.Role {
	case model.RoleManager:
		return "TRUE", args
	case model.RoleProgrammer:
		args = append(args, actor.ID)
		return fmt.Sprintf("o.developer_id = $%d", len(args)), args
	default:
		args = append(args, actor.ID)
		return fmt.Sprintf("o.client_id = $%d", len(args)), args
	}
}

// orderFor loads an order the actor may see. Anything outside the actor's
// scope is reported as ErrOrderNotFound.
func orderFor(ctx context.Context, q dbtx, actor model.Actor, id int64, lock bool) (*model.Order, error) {
	cond, args := scopeFilter(actor, []any{id})
	query := orderSelect + " WHERE o.id = $1 AND " + cond
	if lock {
		query += " FOR UPDATE OF o"
	}

	o, err := scanOrder(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

type OrderService struct {
	db         *sql.DB
	adminEmail string
}

func NewOrderService(db *sql.DB, adminEmail string) *OrderService {
	return &OrderService{db: db, adminEmail: adminEmail}
}

type CreateOrderInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (in *CreateOrderInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	verr := ValidationError{}
	switch {
	case in.Title == "":
		verr.add("title", requiredField)
	case utf8.RuneCountInString(in.Title) > maxTitleLen:
		verr.add("title", fmt.Sprintf("Ensure this field has no more than %d characters.", maxTitleLen))
	}
	if in.Description == "" {
		verr.add("description", requiredField)
	}
	return verr.err()
}

// Create submits a new order owned by actor.
func (s *OrderService) Create(ctx context.Context, actor model.Actor, in CreateOrderInput) (*model.Order, error) {
	if actor.Role != model.RoleClient && actor.Role != model.RoleManager {
		return nil, ErrForbidden
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var order *model.Order
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO orders (title, description, status, client_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			in.Title, in.Description, model.StatusSubmitted, actor.ID,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		submitted := string(model.StatusSubmitted)
		err = writeLog(ctx, tx, model.LogEntry{
			OrderID:     id,
			EventType:   model.EventStatusChange,
			Description: "Order submitted",
			NewValue:    &submitted,
		}, actor)
		if err != nil {
			return err
		}

		order, err = orderFor(ctx, tx, actor, id, false)
		if err != nil {
			return err
		}

		username, email, err := userContact(ctx, tx, order.ClientID)
		if err != nil {
			return err
		}
		if email == "" {
			return nil
		}
		return enqueue(ctx, tx, orderCreatedNotification(order, username, email))
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) List(ctx context.Context, actor model.Actor) ([]model.Order, error) {
	cond, args := scopeFilter(actor, nil)
	rows, err := s.db.QueryContext(ctx, orderSelect+" WHERE "+cond+" ORDER BY o.created_at DESC, o.id DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return orders, nil
}

func (s *OrderService) Get(ctx context.Context, actor model.Actor, id int64) (*model.Order, error) {
	return orderFor(ctx, s.db, actor, id, false)
}

// Transitions lists the statuses actor may move the order to right now.
func (s *OrderService) Transitions(ctx context.Context, actor model.Actor, id int64) ([]model.Status, error) {
	o, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return workflow.Available(actor, o), nil
}

// ChangeStatus moves the order to the target status, records the change and
// queues a notification for everyone involved. Re-setting the current status
// is a no-op.
func (s *OrderService) ChangeStatus(ctx context.Context, actor model.Actor, id int64, target string) (*model.Order, error) {
	to, err := workflow.Parse(target)
	if err != nil {
		return nil, err
	}

	var (
		order   *model.Order
		from    model.Status
		changed bool
	)
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		o, err := orderFor(ctx, tx, actor, id, true)
		if err != nil {
			return err
		}
		order, from = o, o.Status

		if err := workflow.Authorize(actor, o, to); err != nil {
			if errors.Is(err, workflow.ErrUnchanged) {
				return nil
			}
			return err
		}

		err = tx.QueryRowContext(ctx,
			`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`,
			to, id,
		).Scan(&o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		o.Status = to

		oldValue, newValue := string(from), string(to)
		err = writeLog(ctx, tx, model.LogEntry{
			OrderID:     id,
			EventType:   model.EventStatusChange,
			Description: fmt.Sprintf("Status changed from %q to %q", workflow.Label(from), workflow.Label(to)),
			OldValue:    &oldValue,
			NewValue:    &newValue,
		}, actor)
		if err != nil {
			return err
		}

		if err := s.notifyStatusChange(ctx, tx, o, from, actor); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		metrics.OrderTransitions.WithLabelValues(string(from), string(to), string(actor.Role)).Inc()
	}
	return order, nil
}

func (s *OrderService) notifyStatusChange(ctx context.Context, tx *sql.Tx, o *model.Order, from model.Status, actor model.Actor) error {
	recipients, err := orderRecipients(ctx, tx, o.ID)
	if err != nil {
		return err
	}
	if len(recipients) == 0 && s.adminEmail != "" {
		recipients = []string{s.adminEmail}
	}

	subject := fmt.Sprintf("Order #%d: status changed to %s", o.ID, workflow.Label(o.Status))
	body := fmt.Sprintf(
		"Order #%d %q changed status from %q to %q.\nChanged by: %s\n",
		o.ID, o.Title, workflow.Label(from), workflow.Label(o.Status), actor.Username,
	)
	for _, to := range recipients {
		orderID := o.ID
		err := enqueue(ctx, tx, model.Notification{OrderID: &orderID, Recipient: to, Subject: subject, Body: body})
		if err != nil {
			return err
		}
	}
	return nil
}

// orderRecipients returns the distinct non-empty e-mail addresses of the
// order's client, manager and developer.
func orderRecipients(ctx context.Context, q dbtx, orderID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT u.email
		FROM orders o
		JOIN users u ON u.id IN (o.client_id, o.manager_id, o.developer_id)
		WHERE o.id = $1 AND u.email <> ''
		ORDER BY u.email`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, email)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return out, nil
}

// AssignDeveloper sets (or clears, when developerID is nil) the order's
// programmer. The assigning manager becomes the order's manager.
func (s *OrderService) AssignDeveloper(ctx context.Context, actor model.Actor, id int64, developerID *int64) (*model.Order, error) {
	if actor.Role != model.RoleManager {
		return nil, ErrForbidden
	}

	var order *model.Order
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		o, err := orderFor(ctx, tx, actor, id, true)
		if err != nil {
			return err
		}

		newName := "none"
		if developerID != nil {
			dev, err := getUser(ctx, tx, "u.id = $1", *developerID)
			if errors.Is(err, ErrUserNotFound) {
				return ValidationError{"developer": {"Selected user does not exist."}}
			}
			if err != nil {
				return err
			}
			if !hasGroup(dev, model.RoleProgrammer) {
				return ValidationError{"developer": {"Selected user is not a programmer."}}
			}
			newName = dev.Username
		}
		oldName := "none"
		if o.DeveloperDetail != nil {
			oldName = *o.DeveloperDetail
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET developer_id = $1, manager_id = $2, updated_at = NOW() WHERE id = $3`,
			developerID, actor.ID, id,
		)
		if err != nil {
			return fmt.Errorf("assign developer: %w", err)
		}

		err = writeLog(ctx, tx, model.LogEntry{
			OrderID:     id,
			EventType:   model.EventAssignment,
			Description: fmt.Sprintf("Developer changed from %q to %q", oldName, newName),
			OldValue:    &oldName,
			NewValue:    &newName,
		}, actor)
		if err != nil {
			return err
		}

		order, err = orderFor(ctx, tx, actor, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func hasGroup(u *model.User, role model.Role) bool {
	for _, g := range u.Groups {
		if g.Name == string(role) {
			return true
		}
	}
	return false
}
