package entity

import "time"

// Role represents an authorization role
// Many-to-many with User via user_roles and with Permission via role_permissions
type Role struct {
	ID          string
	Name        string
	Description string
	Permissions []Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
