// Package rbac implementa el modelo de roles y permisos y sus asignaciones.
//
// Los nombres de rol y permiso son únicos en todo el sistema; las lecturas
// se filtran por tenant. Un rol con TenantID vacío es global (los
// predefinidos) y se resuelve por nombre desde cualquier tenant.
package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/accesscore/internal/audit"
	"github.com/dropDatabas3/accesscore/internal/domain/autherr"
	"github.com/dropDatabas3/accesscore/internal/domain/repository"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
)

// Roles predefinidos.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleUser       = "USER"
)

// PredefinedRoles se crean al arrancar si faltan.
var PredefinedRoles = []string{RoleSuperAdmin, RoleAdmin, RoleUser}

// Service define las operaciones RBAC.
type Service interface {
	CreateRole(ctx context.Context, in RoleInput) (*repository.Role, error)
	CreatePermission(ctx context.Context, in PermissionInput) (*repository.Permission, error)

	FindRoleByName(ctx context.Context, tenantID, name string) (*repository.Role, error)
	FindPermissionByName(ctx context.Context, tenantID, name string) (*repository.Permission, error)
	FindAllRolesByTenant(ctx context.Context, tenantID string) ([]repository.Role, error)
	FindAllPermissionsByTenant(ctx context.Context, tenantID string) ([]repository.Permission, error)

	// AssignRole retorna assigned=false si el par ya existía (no es error).
	AssignRole(ctx context.Context, userID, roleID string, by audit.Actor) (assigned bool, err error)
	RemoveRole(ctx context.Context, userID, roleID string, by audit.Actor) (removed bool, err error)
	AddPermissionToRole(ctx context.Context, roleID, permissionID string, by audit.Actor) (bool, error)
	RemovePermissionFromRole(ctx context.Context, roleID, permissionID string) (bool, error)

	UserRoles(ctx context.Context, userID string) ([]repository.Role, error)
	RolePermissions(ctx context.Context, roleID string) ([]repository.Permission, error)

	// EnsureRoles crea como predefinidos los roles globales que falten.
	EnsureRoles(ctx context.Context, names ...string) ([]repository.Role, error)
}

type RoleInput struct {
	TenantID    string
	Name        string
	Description string
}

type PermissionInput struct {
	TenantID    string
	Name        string
	Description string
}

// Deps contiene las dependencias del servicio.
type Deps struct {
	Roles       repository.RoleRepository
	Permissions repository.PermissionRepository
	Assignments repository.AssignmentRepository
	Users       repository.UserRepository
	Audit       audit.Recorder
	Now         func() time.Time
}

type service struct {
	deps Deps
}

// NewService crea el servicio RBAC.
func NewService(deps Deps) Service {
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &service{deps: deps}
}

const componentRBAC = "rbac"

func (s *service) log(ctx context.Context, op string) *zap.Logger {
	return logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component(componentRBAC),
		logger.Op(op),
	)
}

func (s *service) CreateRole(ctx context.Context, in RoleInput) (*repository.Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("rbac: role name required")
	}
	r := &repository.Role{
		TenantID:    strings.TrimSpace(in.TenantID),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   s.deps.Now(),
	}
	if err := s.deps.Roles.Create(ctx, r); err != nil {
		if repository.ConflictOn(err, repository.ConstraintRoleName) {
			return nil, autherr.ErrDuplicateRoleName
		}
		s.log(ctx, "CreateRole").Error("create role failed", logger.Err(err))
		return nil, err
	}
	return r, nil
}

func (s *service) CreatePermission(ctx context.Context, in PermissionInput) (*repository.Permission, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("rbac: permission name required")
	}
	p := &repository.Permission{
		TenantID:    strings.TrimSpace(in.TenantID),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   s.deps.Now(),
	}
	if err := s.deps.Permissions.Create(ctx, p); err != nil {
		if repository.ConflictOn(err, repository.ConstraintPermissionName) {
			return nil, autherr.ErrDuplicatePermissionName
		}
		s.log(ctx, "CreatePermission").Error("create permission failed", logger.Err(err))
		return nil, err
	}
	return p, nil
}

func visible(ownerTenant, tenantID string) bool {
	return ownerTenant == "" || ownerTenant == tenantID
}

// authorize valida que by pueda tocar los roles de u. Un actor sin tenant es
// de plataforma; uno con tenant no ve usuarios de otros tenants. Solo un
// SUPER_ADMIN otorga o quita SUPER_ADMIN. Actor sin ID = sistema.
func authorize(by audit.Actor, u *repository.User, r *repository.Role) error {
	if by.TenantID != "" && by.TenantID != u.TenantID {
		return autherr.NotFound("user", u.ID)
	}
	if by.ID != "" && strings.EqualFold(r.Name, RoleSuperAdmin) && !by.HasRole(RoleSuperAdmin) {
		return autherr.ErrForbidden
	}
	return nil
}

func (s *service) FindRoleByName(ctx context.Context, tenantID, name string) (*repository.Role, error) {
	r, err := s.deps.Roles.GetByName(ctx, strings.TrimSpace(name))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, autherr.ErrRoleNotFound
		}
		return nil, err
	}
	if !visible(r.TenantID, tenantID) {
		return nil, autherr.ErrRoleNotFound
	}
	return r, nil
}

func (s *service) FindPermissionByName(ctx context.Context, tenantID, name string) (*repository.Permission, error) {
	p, err := s.deps.Permissions.GetByName(ctx, strings.TrimSpace(name))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, autherr.ErrPermissionNotFound
		}
		return nil, err
	}
	if !visible(p.TenantID, tenantID) {
		return nil, autherr.ErrPermissionNotFound
	}
	return p, nil
}

// FindAllRolesByTenant retorna los roles del tenant más los globales.
func (s *service) FindAllRolesByTenant(ctx context.Context, tenantID string) ([]repository.Role, error) {
	out, err := s.deps.Roles.ListByTenant(ctx, tenantID)
	if err != nil || tenantID == "" {
		return out, err
	}
	global, err := s.deps.Roles.ListByTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	out = append(out, global...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FindAllPermissionsByTenant retorna los permisos del tenant más los globales.
func (s *service) FindAllPermissionsByTenant(ctx context.Context, tenantID string) ([]repository.Permission, error) {
	out, err := s.deps.Permissions.ListByTenant(ctx, tenantID)
	if err != nil || tenantID == "" {
		return out, err
	}
	global, err := s.deps.Permissions.ListByTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	out = append(out, global...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *service) role(ctx context.Context, id string) (*repository.Role, error) {
	r, err := s.deps.Roles.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, autherr.ErrRoleNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *service) user(ctx context.Context, id string) (*repository.User, error) {
	u, err := s.deps.Users.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, autherr.NotFound("user", id)
		}
		return nil, err
	}
	return u, nil
}

func (s *service) AssignRole(ctx context.Context, userID, roleID string, by audit.Actor) (bool, error) {
	log := s.log(ctx, "AssignRole").With(logger.String("target_user_id", userID), logger.RoleID(roleID))

	u, err := s.user(ctx, userID)
	if err != nil {
		return false, err
	}
	r, err := s.role(ctx, roleID)
	if err != nil {
		return false, err
	}
	if !visible(r.TenantID, u.TenantID) {
		return false, autherr.ErrRoleNotFound
	}
	if err := authorize(by, u, r); err != nil {
		log.Warn("role assignment denied", logger.Err(err))
		return false, err
	}

	now := s.deps.Now()
	created, err := s.deps.Assignments.AssignRole(ctx, repository.UserRole{
		UserID:     u.ID,
		RoleID:     r.ID,
		TenantID:   u.TenantID,
		AssignedBy: assigner(by),
		AssignedAt: now,
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return false, autherr.ErrRoleNotFound
		}
		log.Error("assign role failed", logger.Err(err))
		return false, err
	}
	if !created {
		log.Debug("role already assigned")
		return false, nil
	}

	e := by.Event(audit.ActionAssignRole)
	e.EntityType, e.EntityID = "user", u.ID
	e.Details = fmt.Sprintf("role=%s", r.Name)
	if e.TenantID == "" {
		e.TenantID = u.TenantID
	}
	audit.Emit(ctx, s.deps.Audit, e, now)
	log.Info("role assigned")
	return true, nil
}

func (s *service) RemoveRole(ctx context.Context, userID, roleID string, by audit.Actor) (bool, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return false, err
	}
	r, err := s.role(ctx, roleID)
	if err != nil {
		return false, err
	}
	if err := authorize(by, u, r); err != nil {
		s.log(ctx, "RemoveRole").Warn("role removal denied",
			logger.String("target_user_id", userID), logger.RoleID(roleID), logger.Err(err))
		return false, err
	}
	removed, err := s.deps.Assignments.RemoveRole(ctx, userID, roleID)
	if err != nil || !removed {
		return false, err
	}
	e := by.Event(audit.ActionRemoveRole)
	e.EntityType, e.EntityID = "user", userID
	e.Details = fmt.Sprintf("role=%s", r.Name)
	audit.Emit(ctx, s.deps.Audit, e, s.deps.Now())
	return true, nil
}

func (s *service) AddPermissionToRole(ctx context.Context, roleID, permissionID string, by audit.Actor) (bool, error) {
	r, err := s.role(ctx, roleID)
	if err != nil {
		return false, err
	}
	p, err := s.deps.Permissions.GetByID(ctx, permissionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return false, autherr.ErrPermissionNotFound
		}
		return false, err
	}
	tenant := r.TenantID
	if tenant == "" {
		tenant = p.TenantID
	}
	created, err := s.deps.Assignments.AddPermission(ctx, repository.RolePermission{
		RoleID:       r.ID,
		PermissionID: p.ID,
		TenantID:     tenant,
		AssignedBy:   assigner(by),
		AssignedAt:   s.deps.Now(),
	})
	if err != nil {
		s.log(ctx, "AddPermissionToRole").Error("add permission failed", logger.Err(err))
		return false, err
	}
	return created, nil
}

func (s *service) RemovePermissionFromRole(ctx context.Context, roleID, permissionID string) (bool, error) {
	if _, err := s.role(ctx, roleID); err != nil {
		return false, err
	}
	if _, err := s.deps.Permissions.GetByID(ctx, permissionID); err != nil {
		if repository.IsNotFound(err) {
			return false, autherr.ErrPermissionNotFound
		}
		return false, err
	}
	return s.deps.Assignments.RemovePermission(ctx, roleID, permissionID)
}

func (s *service) UserRoles(ctx context.Context, userID string) ([]repository.Role, error) {
	return s.deps.Assignments.RolesOfUser(ctx, userID)
}

func (s *service) RolePermissions(ctx context.Context, roleID string) ([]repository.Permission, error) {
	if _, err := s.role(ctx, roleID); err != nil {
		return nil, err
	}
	return s.deps.Assignments.PermissionsOfRole(ctx, roleID)
}

func (s *service) EnsureRoles(ctx context.Context, names ...string) ([]repository.Role, error) {
	out := make([]repository.Role, 0, len(names))
	for _, name := range names {
		r, err := s.deps.Roles.GetByName(ctx, name)
		if err == nil {
			out = append(out, *r)
			continue
		}
		if !repository.IsNotFound(err) {
			return nil, err
		}
		r = &repository.Role{Name: name, Predefined: true, CreatedAt: s.deps.Now()}
		if err := s.deps.Roles.Create(ctx, r); err != nil {
			// otra réplica lo creó en el medio
			if repository.ConflictOn(err, repository.ConstraintRoleName) {
				if r, err = s.deps.Roles.GetByName(ctx, name); err == nil {
					out = append(out, *r)
					continue
				}
			}
			return nil, fmt.Errorf("rbac: ensure role %s: %w", name, err)
		}
		s.log(ctx, "EnsureRoles").Info("predefined role created", logger.String("role", name))
		out = append(out, *r)
	}
	return out, nil
}

func assigner(by audit.Actor) string {
	if by.Username != "" {
		return by.Username
	}
	if by.ID != "" {
		return by.ID
	}
	return "system"
}
