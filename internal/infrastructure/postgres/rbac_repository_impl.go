package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codexops/codex-api/internal/domain/entity"
	"github.com/codexops/codex-api/internal/domain/repository"
)

type RBACRepository struct {
	pool *pgxpool.Pool
}

func NewRBACRepository(pool *pgxpool.Pool) *RBACRepository {
	return &RBACRepository{pool: pool}
}

// GetOrCreateRole inserts the role if missing and returns it. The upsert
// leans on the unique name constraint, so concurrent callers converge on the
// same row instead of racing on a read-then-insert.
func (r *RBACRepository) GetOrCreateRole(ctx context.Context, name string) (*entity.Role, error) {
	role := &entity.Role{}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET updated_at = now()
		RETURNING id, name, COALESCE(description, ''), created_at, updated_at
	`, name)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	return role, nil
}

// GetOrCreatePermission inserts the permission if missing. An existing
// permission keeps its row but picks up the registry description.
func (r *RBACRepository) GetOrCreatePermission(ctx context.Context, name, description string) (*entity.Permission, error) {
	perm := &entity.Permission{}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (name, description) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, updated_at = now()
		RETURNING id, name, COALESCE(description, ''), created_at, updated_at
	`, name, description)
	if err := row.Scan(&perm.ID, &perm.Name, &perm.Description, &perm.CreatedAt, &perm.UpdatedAt); err != nil {
		return nil, err
	}
	return perm, nil
}

// ReplaceRolePermissions overwrites the role's permission associations to
// exactly the given set. Delete and re-insert run in one transaction so a
// concurrent reader never observes a half-replaced set.
func (r *RBACRepository) ReplaceRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, pid := range permissionIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO role_permissions (role_id, permission_id)
				VALUES ($1, $2)
				ON CONFLICT (role_id, permission_id) DO NOTHING
			`, roleID, pid); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ repository.RBACRepository = (*RBACRepository)(nil)
