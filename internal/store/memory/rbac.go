package memory

import (
	"context"

	"github.com/dropDatabas3/accesscore/internal/domain/repository"
)

type roleRepo struct{ s *Store }

func (r roleRepo) Create(_ context.Context, role *repository.Role) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roleNames[role.Name]; ok {
		return repository.Conflict(repository.ConstraintRoleName)
	}
	if role.ID == "" {
		role.ID = newID()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = s.now()
	}
	s.roles[role.ID] = *role
	s.roleNames[role.Name] = role.ID
	return nil
}

func (r roleRepo) GetByID(_ context.Context, id string) (*repository.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &role, nil
}

func (r roleRepo) GetByName(ctx context.Context, name string) (*repository.Role, error) {
	r.s.mu.RLock()
	id, ok := r.s.roleNames[name]
	r.s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r roleRepo) ListByTenant(_ context.Context, tenantID string) ([]repository.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []repository.Role
	for _, role := range r.s.roles {
		if role.TenantID == tenantID {
			out = append(out, role)
		}
	}
	sortRoles(out)
	return out, nil
}

type permRepo struct{ s *Store }

func (r permRepo) Create(_ context.Context, p *repository.Permission) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permNames[p.Name]; ok {
		return repository.Conflict(repository.ConstraintPermissionName)
	}
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.perms[p.ID] = *p
	s.permNames[p.Name] = p.ID
	return nil
}

func (r permRepo) GetByID(_ context.Context, id string) (*repository.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.perms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r permRepo) GetByName(ctx context.Context, name string) (*repository.Permission, error) {
	r.s.mu.RLock()
	id, ok := r.s.permNames[name]
	r.s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r permRepo) ListByTenant(_ context.Context, tenantID string) ([]repository.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []repository.Permission
	for _, p := range r.s.perms {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sortPerms(out)
	return out, nil
}

type assignRepo struct{ s *Store }

func (r assignRepo) AssignRole(_ context.Context, a repository.UserRole) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[a.UserID]; !ok {
		return false, repository.ErrNotFound
	}
	if _, ok := s.roles[a.RoleID]; !ok {
		return false, repository.ErrNotFound
	}
	m := s.userRoles[a.UserID]
	if m == nil {
		m = map[string]repository.UserRole{}
		s.userRoles[a.UserID] = m
	}
	if _, ok := m[a.RoleID]; ok {
		return false, nil
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = s.now()
	}
	m[a.RoleID] = a
	return true, nil
}

func (r assignRepo) RemoveRole(_ context.Context, userID, roleID string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.userRoles[userID]
	if _, ok := m[roleID]; !ok {
		return false, nil
	}
	delete(m, roleID)
	if len(m) == 0 {
		delete(s.userRoles, userID)
	}
	return true, nil
}

func (r assignRepo) RolesOfUser(_ context.Context, userID string) ([]repository.Role, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []repository.Role
	for roleID := range s.userRoles[userID] {
		if role, ok := s.roles[roleID]; ok {
			out = append(out, role)
		}
	}
	sortRoles(out)
	return out, nil
}

func (r assignRepo) AddPermission(_ context.Context, rp repository.RolePermission) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[rp.RoleID]; !ok {
		return false, repository.ErrNotFound
	}
	if _, ok := s.perms[rp.PermissionID]; !ok {
		return false, repository.ErrNotFound
	}
	m := s.rolePerms[rp.RoleID]
	if m == nil {
		m = map[string]repository.RolePermission{}
		s.rolePerms[rp.RoleID] = m
	}
	if _, ok := m[rp.PermissionID]; ok {
		return false, nil
	}
	if rp.AssignedAt.IsZero() {
		rp.AssignedAt = s.now()
	}
	m[rp.PermissionID] = rp
	return true, nil
}

func (r assignRepo) RemovePermission(_ context.Context, roleID, permissionID string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.rolePerms[roleID]
	if _, ok := m[permissionID]; !ok {
		return false, nil
	}
	delete(m, permissionID)
	if len(m) == 0 {
		delete(s.rolePerms, roleID)
	}
	return true, nil
}

func (r assignRepo) PermissionsOfRole(_ context.Context, roleID string) ([]repository.Permission, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []repository.Permission
	for pid := range s.rolePerms[roleID] {
		if p, ok := s.perms[pid]; ok {
			out = append(out, p)
		}
	}
	sortPerms(out)
	return out, nil
}

// UserRoleRow retorna la fila de asignación, para inspeccionar assignedBy/At.
func (s *Store) UserRoleRow(userID, roleID string) (repository.UserRole, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.userRoles[userID][roleID]
	return a, ok
}
