package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"itflow/internal/database"
	"itflow/internal/model"
)

type AuthService struct {
	db *sql.DB
}

func NewAuthService(db *sql.DB) *AuthService {
	return &AuthService{db: db}
}

type RegisterInput struct {
	Username       string `json:"username"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	Company        string `json:"company"`
	Password       string `json:"password"`
	PasswordVerify string `json:"password_verify"`
}

func (in *RegisterInput) validate() error {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	verr := ValidationError{}
	validateUsername(verr, in.Username)
	if in.Email == "" {
		verr.add("email", requiredField)
	} else if _, err := mail.ParseAddress(in.Email); err != nil {
		verr.add("email", "Enter a valid email address.")
	}
	if in.Password == "" {
		verr.add("password", requiredField)
	} else {
		validatePassword(verr, in.Password, in.PasswordVerify)
	}
	return verr.err()
}

// Register creates a self-service account. New accounts are clients.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	return s.CreateUser(ctx, in, []model.Role{model.RoleClient})
}

// CreateUser creates an account with the given groups.
func (s *AuthService) CreateUser(ctx context.Context, in RegisterInput, groups []model.Role) (*model.User, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var user *model.User
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO users (username, first_name, last_name, email, company, password_hash)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			in.Username, in.FirstName, in.LastName, in.Email, in.Company, hash,
		).Scan(&id)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrUsernameTaken
			}
			return fmt.Errorf("insert user: %w", err)
		}

		if err := addGroups(ctx, tx, id, groups); err != nil {
			return err
		}
		if in.Email != "" {
			if err := enqueue(ctx, tx, welcomeNotification(in.Username, in.Email)); err != nil {
				return err
			}
		}

		user, err = getUser(ctx, tx, "u.id = $1", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate accepts either the username or the e-mail address as login.
func (s *AuthService) Authenticate(ctx context.Context, login, password string) (*model.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := getUser(ctx, s.db, "u.username = $1", login)
	if errors.Is(err, ErrUserNotFound) && strings.Contains(login, "@") {
		user, err = getUser(ctx, s.db, "lower(u.email) = lower($1)", login)
	}
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
