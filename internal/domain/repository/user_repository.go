package repository

import (
	"context"
	"errors"

	"github.com/codexops/codex-api/internal/domain/entity"
)

// ErrDuplicateEmail is returned by Create and CreateWithRoles when the
// email is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository defines user persistence operations. Implementations
// return users with their Roles association materialized.
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	// CreateWithRoles persists the user and attaches the named roles
	// (get-or-create) atomically: on any failure no user row survives.
	CreateWithRoles(ctx context.Context, u *entity.User, roleNames []string) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	ListRoleNames(ctx context.Context, userID string) ([]string, error)
	AssignRole(ctx context.Context, userID, roleID string) error
	UpdateAvatar(ctx context.Context, userID, avatarURL string) error
}

// RBACRepository manages roles, permissions, and their associations.
// Get-or-create operations rely on the store's uniqueness constraints
// (insert-or-fetch) so concurrent bootstrap runs converge.
type RBACRepository interface {
	GetOrCreateRole(ctx context.Context, name string) (*entity.Role, error)
	GetOrCreatePermission(ctx context.Context, name, description string) (*entity.Permission, error)
	// ReplaceRolePermissions overwrites the role's permission set to exactly
	// the provided permission IDs.
	ReplaceRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error
}
