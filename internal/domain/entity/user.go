package entity

import (
	"time"
)

// User is the aggregate root for the auth domain
// Passwords are stored as bcrypt hashes in PasswordHash
//
// Roles carries the user's role associations when loaded by the repository.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsActive     bool
	AvatarURL    string
	Roles        []Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RoleNames projects the user's roles to their names, preserving load order.
// Used to populate access-token claims at login and refresh.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}
