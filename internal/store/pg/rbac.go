package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dropDatabas3/accesscore/internal/domain/repository"
)

// ─── Roles ───

type roleRepo struct{ s *Store }

const roleColumns = `id, tenant_id, name, description, predefined, created_at`

func (r roleRepo) Create(ctx context.Context, role *repository.Role) error {
	if role.ID == "" {
		role.ID = newID()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = r.s.now().UTC()
	}
	const query = `
		INSERT INTO roles (` + roleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.s.db.ExecContext(ctx, query,
		role.ID, role.TenantID, role.Name, role.Description, role.Predefined, role.CreatedAt)
	if err != nil {
		return fmt.Errorf("pg: insert role: %w", mapErr(err))
	}
	return nil
}

func (r roleRepo) GetByID(ctx context.Context, id string) (*repository.Role, error) {
	const query = `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`
	return scanRole(r.s.db.QueryRowContext(ctx, query, id))
}

func (r roleRepo) GetByName(ctx context.Context, name string) (*repository.Role, error) {
	const query = `SELECT ` + roleColumns + ` FROM roles WHERE name = $1`
	return scanRole(r.s.db.QueryRowContext(ctx, query, name))
}

func (r roleRepo) ListByTenant(ctx context.Context, tenantID string) ([]repository.Role, error) {
	const query = `SELECT ` + roleColumns + ` FROM roles WHERE tenant_id = $1 ORDER BY name`
	return queryRoles(ctx, r.s.db, query, tenantID)
}

func scanRole(row interface{ Scan(...any) error }) (*repository.Role, error) {
	var role repository.Role
	if err := row.Scan(&role.ID, &role.TenantID, &role.Name, &role.Description, &role.Predefined, &role.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &role, nil
}

func queryRoles(ctx context.Context, db *sql.DB, query string, args ...any) ([]repository.Role, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pg: query roles: %w", err)
	}
	defer rows.Close()

	var out []repository.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *role)
	}
	return out, rows.Err()
}

// ─── Permissions ───

type permRepo struct{ s *Store }

const permColumns = `id, tenant_id, name, description, predefined, created_at`

func (r permRepo) Create(ctx context.Context, p *repository.Permission) error {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.s.now().UTC()
	}
	const query = `
		INSERT INTO permissions (` + permColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.s.db.ExecContext(ctx, query,
		p.ID, p.TenantID, p.Name, p.Description, p.Predefined, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("pg: insert permission: %w", mapErr(err))
	}
	return nil
}

func (r permRepo) GetByID(ctx context.Context, id string) (*repository.Permission, error) {
	const query = `SELECT ` + permColumns + ` FROM permissions WHERE id = $1`
	return scanPerm(r.s.db.QueryRowContext(ctx, query, id))
}

func (r permRepo) GetByName(ctx context.Context, name string) (*repository.Permission, error) {
	const query = `SELECT ` + permColumns + ` FROM permissions WHERE name = $1`
	return scanPerm(r.s.db.QueryRowContext(ctx, query, name))
}

func (r permRepo) ListByTenant(ctx context.Context, tenantID string) ([]repository.Permission, error) {
	const query = `SELECT ` + permColumns + ` FROM permissions WHERE tenant_id = $1 ORDER BY name`
	return queryPerms(ctx, r.s.db, query, tenantID)
}

func scanPerm(row interface{ Scan(...any) error }) (*repository.Permission, error) {
	var p repository.Permission
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &p.Predefined, &p.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func queryPerms(ctx context.Context, db *sql.DB, query string, args ...any) ([]repository.Permission, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pg: query permissions: %w", err)
	}
	defer rows.Close()

	var out []repository.Permission
	for rows.Next() {
		p, err := scanPerm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ─── Assignments ───

type assignRepo struct{ s *Store }

func (r assignRepo) AssignRole(ctx context.Context, a repository.UserRole) (bool, error) {
	if a.AssignedAt.IsZero() {
		a.AssignedAt = r.s.now().UTC()
	}
	const query = `
		INSERT INTO user_roles (user_id, role_id, tenant_id, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`
	res, err := r.s.db.ExecContext(ctx, query, a.UserID, a.RoleID, a.TenantID, a.AssignedBy, a.AssignedAt)
	if err != nil {
		return false, fmt.Errorf("pg: assign role: %w", mapErr(err))
	}
	return affected(res)
}

func (r assignRepo) RemoveRole(ctx context.Context, userID, roleID string) (bool, error) {
	const query = `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`
	res, err := r.s.db.ExecContext(ctx, query, userID, roleID)
	if err != nil {
		return false, fmt.Errorf("pg: remove role: %w", err)
	}
	return affected(res)
}

func (r assignRepo) RolesOfUser(ctx context.Context, userID string) ([]repository.Role, error) {
	const query = `
		SELECT r.id, r.tenant_id, r.name, r.description, r.predefined, r.created_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`
	return queryRoles(ctx, r.s.db, query, userID)
}

func (r assignRepo) AddPermission(ctx context.Context, rp repository.RolePermission) (bool, error) {
	if rp.AssignedAt.IsZero() {
		rp.AssignedAt = r.s.now().UTC()
	}
	const query = `
		INSERT INTO role_permissions (role_id, permission_id, tenant_id, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (role_id, permission_id) DO NOTHING
	`
	res, err := r.s.db.ExecContext(ctx, query, rp.RoleID, rp.PermissionID, rp.TenantID, rp.AssignedBy, rp.AssignedAt)
	if err != nil {
		return false, fmt.Errorf("pg: add permission: %w", mapErr(err))
	}
	return affected(res)
}

func (r assignRepo) RemovePermission(ctx context.Context, roleID, permissionID string) (bool, error) {
	const query = `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`
	res, err := r.s.db.ExecContext(ctx, query, roleID, permissionID)
	if err != nil {
		return false, fmt.Errorf("pg: remove permission: %w", err)
	}
	return affected(res)
}

func (r assignRepo) PermissionsOfRole(ctx context.Context, roleID string) ([]repository.Permission, error) {
	const query = `
		SELECT p.id, p.tenant_id, p.name, p.description, p.predefined, p.created_at
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name
	`
	return queryPerms(ctx, r.s.db, query, roleID)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
