package repository

import (
	"context"
	"time"
)

// Role representa un rol. El nombre es único en todo el sistema aunque el
// rol pertenezca a un tenant.
type Role struct {
	ID          string
	TenantID    string
	Name        string
	Description string
	Predefined  bool
	CreatedAt   time.Time
}

// Permission representa un permiso. Nombre único en todo el sistema.
type Permission struct {
	ID          string
	TenantID    string
	Name        string
	Description string
	Predefined  bool
	CreatedAt   time.Time
}

// UserRole es la relación principal↔rol, clave compuesta (UserID, RoleID).
type UserRole struct {
	UserID     string
	RoleID     string
	TenantID   string
	AssignedBy string
	AssignedAt time.Time
}

// RolePermission es la relación rol↔permiso, clave compuesta (RoleID, PermissionID).
type RolePermission struct {
	RoleID       string
	PermissionID string
	TenantID     string
	AssignedBy   string
	AssignedAt   time.Time
}

// RoleRepository define operaciones sobre roles.
type RoleRepository interface {
	// Create retorna ConflictError(ConstraintRoleName) si el nombre existe.
	Create(ctx context.Context, r *Role) error
	GetByID(ctx context.Context, id string) (*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Role, error)
}

// PermissionRepository define operaciones sobre permisos.
type PermissionRepository interface {
	// Create retorna ConflictError(ConstraintPermissionName) si el nombre existe.
	Create(ctx context.Context, p *Permission) error
	GetByID(ctx context.Context, id string) (*Permission, error)
	GetByName(ctx context.Context, name string) (*Permission, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Permission, error)
}

// AssignmentRepository gestiona las relaciones de asignación.
// Insertar un par existente retorna (false, nil); quitar uno inexistente también.
type AssignmentRepository interface {
	AssignRole(ctx context.Context, a UserRole) (created bool, err error)
	RemoveRole(ctx context.Context, userID, roleID string) (removed bool, err error)
	RolesOfUser(ctx context.Context, userID string) ([]Role, error)

	AddPermission(ctx context.Context, rp RolePermission) (created bool, err error)
	RemovePermission(ctx context.Context, roleID, permissionID string) (removed bool, err error)
	PermissionsOfRole(ctx context.Context, roleID string) ([]Permission, error)
}
