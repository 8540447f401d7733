package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"itflow/internal/database"
	"itflow/internal/model"
)

const (
	minPasswordLen = 8
	maxUsernameLen = 150
)

const userSelect = `
	SELECT u.id, u.username, u.first_name, u.last_name, u.email, u.company, u.password_hash, u.created_at,
	       COALESCE(json_agg(json_build_object('id', g.id, 'name', g.name) ORDER BY g.id)
	                FILTER (WHERE g.id IS NOT NULL), '[]')
	FROM users u
	LEFT JOIN user_groups ug ON ug.user_id = u.id
	LEFT JOIN groups g ON g.id = ug.group_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	var groups []byte
	if err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Email, &u.Company, &u.PasswordHash, &u.CreatedAt, &groups); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(groups, &u.Groups); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}
	return &u, nil
}

func getUser(ctx context.Context, q dbtx, where string, arg any) (*model.User, error) {
	row := q.QueryRowContext(ctx, userSelect+" WHERE "+where+" GROUP BY u.id", arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

type UserService struct {
	db *sql.DB
}

func NewUserService(db *sql.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	return getUser(ctx, s.db, "u.id = $1", id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return getUser(ctx, s.db, "u.username = $1", username)
}

// UpdateUserInput carries a partial profile update; nil fields are kept.
type UpdateUserInput struct {
	Username       *string `json:"username"`
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	Email          *string `json:"email"`
	Company        *string `json:"company"`
	Password       *string `json:"password"`
	PasswordVerify *string `json:"password_verify"`
}

func (s *UserService) Update(ctx context.Context, id int64, in UpdateUserInput) (*model.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	verr := ValidationError{}
	if in.Username != nil {
		if v := strings.TrimSpace(*in.Username); validateUsername(verr, v) {
			u.Username = v
		}
	}
	if in.Email != nil {
		v := strings.TrimSpace(*in.Email)
		if _, err := mail.ParseAddress(v); err != nil {
			verr.add("email", "Enter a valid email address.")
		} else {
			u.Email = v
		}
	}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Company != nil {
		u.Company = strings.TrimSpace(*in.Company)
	}

	var newHash []byte
	if in.Password != nil && *in.Password != "" {
		verify := ""
		if in.PasswordVerify != nil {
			verify = *in.PasswordVerify
		}
		if validatePassword(verr, *in.Password, verify) {
			if newHash, err = bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost); err != nil {
				return nil, fmt.Errorf("hash password: %w", err)
			}
		}
	}
	if err := verr.err(); err != nil {
		return nil, err
	}

	if newHash != nil {
		u.PasswordHash = newHash
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE users SET username = $1, first_name = $2, last_name = $3, email = $4, company = $5, password_hash = $6
		WHERE id = $7`,
		u.Username, u.FirstName, u.LastName, u.Email, u.Company, u.PasswordHash, u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

func (s *UserService) Programmers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, userSelect+`
		WHERE u.id IN (
			SELECT ug.user_id FROM user_groups ug JOIN groups g ON g.id = ug.group_id WHERE g.name = $1
		)
		GROUP BY u.id
		ORDER BY u.username`, string(model.RoleProgrammer))
	if err != nil {
		return nil, fmt.Errorf("query programmers: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return users, nil
}

type Dashboard struct {
	User        *model.User  `json:"user"`
	Groups      []string     `json:"groups"`
	LatestOrder *model.Order `json:"latest_order"`
}

func (s *UserService) Dashboard(ctx context.Context, id int64) (*Dashboard, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{User: u, Groups: u.GroupNames()}
	row := s.db.QueryRowContext(ctx, orderSelect+` WHERE o.client_id = $1 ORDER BY o.created_at DESC, o.id DESC LIMIT 1`, id)
	o, err := scanOrder(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("latest order: %w", err)
	default:
		d.LatestOrder = o
	}
	return d, nil
}

// SetGroups replaces the user's group membership and tells the user about
// the new roles.
func (s *UserService) SetGroups(ctx context.Context, id int64, groups []model.Role) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		username, email, err := userContact(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_groups WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("clear groups: %w", err)
		}
		if err := addGroups(ctx, tx, id, groups); err != nil {
			return err
		}
		if email == "" || len(groups) == 0 {
			return nil
		}
		return enqueue(ctx, tx, roleChangeNotification(username, email, groups))
	})
}

func addGroups(ctx context.Context, tx *sql.Tx, userID int64, groups []model.Role) error {
	for _, g := range groups {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO user_groups (user_id, group_id)
			SELECT $1, id FROM groups WHERE name = $2
			ON CONFLICT DO NOTHING`, userID, string(g))
		if err != nil {
			return fmt.Errorf("add group %s: %w", g, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE name = $1)`, string(g)).Scan(&exists); err != nil {
				return fmt.Errorf("check group %s: %w", g, err)
			}
			if !exists {
				return fmt.Errorf("unknown group %q", g)
			}
		}
	}
	return nil
}

func validateUsername(verr ValidationError, username string) bool {
	switch {
	case username == "":
		verr.add("username", requiredField)
	case utf8.RuneCountInString(username) > maxUsernameLen:
		verr.add("username", fmt.Sprintf("Ensure this field has no more than %d characters.", maxUsernameLen))
	default:
		return true
	}
	return false
}

func validatePassword(verr ValidationError, password, verify string) bool {
	ok := true
	if len(password) < minPasswordLen {
		verr.add("password", fmt.Sprintf("Ensure this field has at least %d characters.", minPasswordLen))
		ok = false
	}
	if verify != password {
		verr.add("password_verify", "Passwords must match.")
		ok = false
	}
	return ok
}
