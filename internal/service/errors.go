package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrForbidden          = errors.New("permission denied")
	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrFileNotFound       = errors.New("file not found")
	ErrFileHidden         = errors.New("file is not visible to clients")
	ErrFileTooLarge       = errors.New("file exceeds the upload limit")
	ErrMessageNotFound    = errors.New("contact message not found")
	ErrNoRecipient        = errors.New("order client has no e-mail address")
)

// ValidationError maps field names to human-readable problems.
type ValidationError map[string][]string

func (v ValidationError) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("validation failed:")
	for _, f := range fields {
		b.WriteString(" ")
		b.WriteString(f)
		b.WriteString(": ")
		b.WriteString(strings.Join(v[f], "; "))
		b.WriteString(";")
	}
	return b.String()
}

func (v ValidationError) add(field, msg string) {
	v[field] = append(v[field], msg)
}

func (v ValidationError) err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

const requiredField = "This field is required."

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nullInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
