package model

import "time"

type Role string

const (
	RoleClient     Role = "client"
	RoleManager    Role = "manager"
	RoleProgrammer Role = "programmer"
)

type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	Company      string    `json:"company"`
	PasswordHash []byte    `json:"-"`
	Groups       []Group   `json:"groups"`
	CreatedAt    time.Time `json:"created_at"`
}

// Role picks the strongest group the user belongs to. Users without any
// staff group are clients.
func (u *User) Role() Role {
	var programmer bool
	for _, g := range u.Groups {
		switch Role(g.Name) {
		case RoleManager:
			return RoleManager
		case RoleProgrammer:
			programmer = true
		}
	}
	if programmer {
		return RoleProgrammer
	}
	return RoleClient
}

func (u *User) GroupNames() []string {
	names := make([]string, 0, len(u.Groups))
	for _, g := range u.Groups {
		names = append(names, g.Name)
	}
	return names
}

func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Username
}

// Actor is the authenticated caller as seen by the services.
type Actor struct {
	ID       int64
	Username string
	Email    string
	Role     Role
}
