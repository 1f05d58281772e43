package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dropDatabas3/accesscore/internal/domain/repository"
)

type userRepo struct{ s *Store }

const userColumns = `id, tenant_id, username, email, phone_number, full_name, password_hash, enabled, super_admin, created_at, updated_at`

func (r userRepo) Create(ctx context.Context, u *repository.User, roles []repository.UserRole) error {
	if u.ID == "" {
		u.ID = newID()
	}
	now := r.s.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		const query = `
			INSERT INTO users (` + userColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`
		if _, err := tx.ExecContext(ctx, query,
			u.ID, u.TenantID, u.Username, u.Email, nullString(u.Phone), u.FullName,
			u.PasswordHash, u.Enabled, u.SuperAdmin, u.CreatedAt, u.UpdatedAt,
		); err != nil {
			return fmt.Errorf("pg: insert user: %w", mapErr(err))
		}

		const link = `
			INSERT INTO user_roles (user_id, role_id, tenant_id, assigned_by, assigned_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, role_id) DO NOTHING
		`
		for _, a := range roles {
			if a.AssignedAt.IsZero() {
				a.AssignedAt = now
			}
			if _, err := tx.ExecContext(ctx, link, u.ID, a.RoleID, a.TenantID, a.AssignedBy, a.AssignedAt); err != nil {
				return fmt.Errorf("pg: link role %s: %w", a.RoleID, mapErr(err))
			}
		}
		return nil
	})
}

func (r userRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r userRepo) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanOne(ctx, query, username)
}

func (r userRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`
	var ok bool
	if err := r.s.db.QueryRowContext(ctx, query, username).Scan(&ok); err != nil {
		return false, fmt.Errorf("pg: exists username: %w", err)
	}
	return ok, nil
}

func (r userRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`
	var ok bool
	if err := r.s.db.QueryRowContext(ctx, query, email).Scan(&ok); err != nil {
		return false, fmt.Errorf("pg: exists email: %w", err)
	}
	return ok, nil
}

func (r userRepo) scanOne(ctx context.Context, query string, arg any) (*repository.User, error) {
	var (
		u     repository.User
		phone sql.NullString
	)
	err := r.s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.TenantID, &u.Username, &u.Email, &phone, &u.FullName,
		&u.PasswordHash, &u.Enabled, &u.SuperAdmin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	u.Phone = stringPtr(phone)
	return &u, nil
}
