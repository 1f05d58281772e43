package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica una violación de unicidad.
	ErrConflict = errors.New("conflict")
)

// Nombres de constraints únicos. Los drivers reportan el constraint violado
// para que los services distingan username de email, etc.
const (
	ConstraintUsername       = "users_username_key"
	ConstraintEmail          = "users_email_key"
	ConstraintPhone          = "users_phone_number_key"
	ConstraintRoleName       = "roles_name_key"
	ConstraintPermissionName = "permissions_name_key"
	ConstraintRefreshUser    = "refresh_tokens_user_id_key"
)

// ConflictError reporta el constraint único violado.
type ConflictError struct {
	Constraint string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s", e.Constraint)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Conflict construye un ConflictError.
func Conflict(constraint string) error {
	return &ConflictError{Constraint: constraint}
}

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// ConflictOn retorna true si err es un conflicto sobre el constraint dado.
func ConflictOn(err error, constraint string) bool {
	var ce *ConflictError
	return errors.As(err, &ce) && ce.Constraint == constraint
}
