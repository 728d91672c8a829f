package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codexops/codex-api/internal/domain/entity"
	"github.com/codexops/codex-api/internal/domain/repository"
)

var errNotFound = errors.New("not found")

// ErrNotFound reports whether err is the repository's row-missing sentinel.
func ErrNotFound(err error) bool { return errors.Is(err, errNotFound) }

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	return r.insert(ctx, r.pool, u)
}

// CreateWithRoles runs the user insert, each role upsert, and each
// assignment in a single transaction, so a mid-sequence failure leaves no
// roleless user row behind and the email stays free for a retry.
func (r *UserRepository) CreateWithRoles(ctx context.Context, u *entity.User, roleNames []string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := r.insert(ctx, tx, u); err != nil {
			return err
		}
		for _, name := range roleNames {
			var roleID string
			row := tx.QueryRow(ctx, `
				INSERT INTO roles (name) VALUES ($1)
				ON CONFLICT (name) DO UPDATE SET updated_at = now()
				RETURNING id
			`, name)
			if err := row.Scan(&roleID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO user_roles (user_id, role_id)
				VALUES ($1, $2)
				ON CONFLICT (user_id, role_id) DO NOTHING
			`, u.ID, roleID); err != nil {
				return err
			}
		}
		return nil
	})
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *UserRepository) insert(ctx context.Context, q querier, u *entity.User) error {
	row := q.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, is_active, avatar_url)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, u.Email, u.PasswordHash, u.IsActive, u.AvatarURL)

	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.getBy(ctx, `WHERE id = $1`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getBy(ctx, `WHERE email = $1`, email)
}

func (r *UserRepository) getBy(ctx context.Context, where string, arg any) (*entity.User, error) {
	u := &entity.User{}
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, is_active, avatar_url, created_at, updated_at
		FROM users
	`+where, arg)

	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.AvatarURL,
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errNotFound
		}
		return nil, err
	}

	roles, err := r.rolesFor(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return u, nil
}

func (r *UserRepository) rolesFor(ctx context.Context, userID string) ([]entity.Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.name, COALESCE(r.description, ''), r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []entity.Role
	for rows.Next() {
		var role entity.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *UserRepository) ListRoleNames(ctx context.Context, userID string) ([]string, error) {
	roles, err := r.rolesFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names, nil
}

func (r *UserRepository) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`, userID, roleID)
	return err
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, userID, avatarURL string) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE users SET avatar_url = $1, updated_at = $2 WHERE id = $3
	`, avatarURL, time.Now(), userID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
