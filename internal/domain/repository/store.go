package repository

import "context"

// Store agrupa los repositorios de un driver de storage.
type Store interface {
	Users() UserRepository
	Roles() RoleRepository
	Permissions() PermissionRepository
	Assignments() AssignmentRepository
	RefreshTokens() RefreshTokenRepository
	RevokedTokens() RevokedTokenRepository
	Audit() AuditRepository

	Ping(ctx context.Context) error
	Close() error
}
