// Package token issues and verifies the JWT access/refresh pair.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"itflow/internal/model"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

var (
	ErrInvalid = errors.New("invalid or expired token")
	ErrRevoked = errors.New("token revoked")
)

// Claims is the typed JWT payload.
type Claims struct {
	UserID   int64      `json:"user_id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Role     model.Role `json:"role"`
	Type     string     `json:"typ"`
	jwt.RegisteredClaims
}

func (c *Claims) Actor() model.Actor {
	return model.Actor{ID: c.UserID, Username: c.Username, Email: c.Email, Role: c.Role}
}

type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Store remembers live refresh tokens by their jti.
type Store interface {
	Save(ctx context.Context, jti string, userID int64, ttl time.Duration) error
	// Take removes jti and reports whether it was live. Only one caller
	// may observe true for a given jti.
	Take(ctx context.Context, jti string) (bool, error)
	Revoke(ctx context.Context, jti string) error
}

type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      Store
	now        func() time.Time
}

func NewManager(secret string, accessTTL, refreshTTL time.Duration, store Store) *Manager {
	return &Manager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		store:      store,
		now:        time.Now,
	}
}

func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// Issue signs a new access/refresh pair for u and records the refresh token.
func (m *Manager) Issue(ctx context.Context, u *model.User) (Pair, error) {
	access, err := m.sign(u, typeAccess, uuid.NewString(), m.accessTTL)
	if err != nil {
		return Pair{}, err
	}

	jti := uuid.NewString()
	refresh, err := m.sign(u, typeRefresh, jti, m.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	if err := m.store.Save(ctx, jti, u.ID, m.refreshTTL); err != nil {
		return Pair{}, fmt.Errorf("save refresh token: %w", err)
	}

	return Pair{Access: access, Refresh: refresh}, nil
}

func (m *Manager) sign(u *model.User, typ, jti string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role(),
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   fmt.Sprint(u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return s, nil
}

func (m *Manager) parse(raw, typ string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Type != typ {
		return nil, ErrInvalid
	}
	return claims, nil
}

// ParseAccess validates an access token.
func (m *Manager) ParseAccess(raw string) (*Claims, error) {
	return m.parse(raw, typeAccess)
}

// Consume validates a refresh token and revokes it so it cannot be replayed.
func (m *Manager) Consume(ctx context.Context, raw string) (*Claims, error) {
	claims, err := m.parse(raw, typeRefresh)
	if err != nil {
		return nil, err
	}

	ok, err := m.store.Take(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("take refresh token: %w", err)
	}
	if !ok {
		return nil, ErrRevoked
	}
	return claims, nil
}

// Revoke invalidates a refresh token. Unknown or expired tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, raw string) error {
	claims, err := m.parse(raw, typeRefresh)
	if err != nil {
		return nil
	}
	return m.store.Revoke(ctx, claims.ID)
}
