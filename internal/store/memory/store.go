// Package memory implementa los repositorios en proceso. Es el driver por
// defecto para desarrollo y el que usan los tests de los services.
//
// Un único RWMutex protege todas las tablas: así Create de usuario con sus
// roles es atómico igual que en la transacción de pg.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/accesscore/internal/domain/repository"
)

type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	users       map[string]repository.User
	usernames   map[string]string
	emails      map[string]string
	phones      map[string]string
	roles       map[string]repository.Role
	roleNames   map[string]string
	perms       map[string]repository.Permission
	permNames   map[string]string
	userRoles   map[string]map[string]repository.UserRole
	rolePerms   map[string]map[string]repository.RolePermission
	refresh     map[string]repository.RefreshToken
	refreshUser map[string]string
	revoked     map[string]repository.RevokedToken
	audit       []repository.AuditEntry
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:         time.Now,
		users:       map[string]repository.User{},
		usernames:   map[string]string{},
		emails:      map[string]string{},
		phones:      map[string]string{},
		roles:       map[string]repository.Role{},
		roleNames:   map[string]string{},
		perms:       map[string]repository.Permission{},
		permNames:   map[string]string{},
		userRoles:   map[string]map[string]repository.UserRole{},
		rolePerms:   map[string]map[string]repository.RolePermission{},
		refresh:     map[string]repository.RefreshToken{},
		refreshUser: map[string]string{},
		revoked:     map[string]repository.RevokedToken{},
	}
}

func (s *Store) Users() repository.UserRepository                 { return userRepo{s} }
func (s *Store) Roles() repository.RoleRepository                 { return roleRepo{s} }
func (s *Store) Permissions() repository.PermissionRepository     { return permRepo{s} }
func (s *Store) Assignments() repository.AssignmentRepository     { return assignRepo{s} }
func (s *Store) RefreshTokens() repository.RefreshTokenRepository { return refreshRepo{s} }
func (s *Store) RevokedTokens() repository.RevokedTokenRepository { return revokedRepo{s} }
func (s *Store) Audit() repository.AuditRepository                { return auditRepo{s} }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
func (s *Store) Close() error                   { return nil }

// AuditEntries retorna una copia de los eventos persistidos, en orden.
func (s *Store) AuditEntries() []repository.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]repository.AuditEntry(nil), s.audit...)
}

func newID() string { return uuid.NewString() }

func sortRoles(rs []repository.Role) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Name < rs[j].Name })
}

func sortPerms(ps []repository.Permission) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
}
