package repository

import (
	"context"
	"time"
)

// User representa un principal del sistema.
type User struct {
	ID           string
	TenantID     string
	Username     string
	Email        string
	Phone        *string
	FullName     string
	PasswordHash string
	Enabled      bool
	SuperAdmin   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserRepository define operaciones sobre usuarios.
type UserRepository interface {
	// Create inserta el usuario y sus asignaciones de rol en una sola
	// transacción. Retorna ConflictError si username, email o teléfono ya existen.
	Create(ctx context.Context, u *User, roles []UserRole) error

	// GetByID retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByUsername retorna ErrNotFound si no existe.
	GetByUsername(ctx context.Context, username string) (*User, error)

	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}
