// Package autherr define la taxonomía de errores del core de autenticación.
//
// Los services retornan estos errores tipados; la capa HTTP los traduce a
// status y códigos sin filtrar detalle interno.
package autherr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")

	ErrDuplicateUsername       = errors.New("username already taken")
	ErrDuplicateEmail          = errors.New("email already in use")
	ErrDuplicatePhone          = errors.New("phone number already in use")
	ErrDuplicateRoleName       = errors.New("role name already exists")
	ErrDuplicatePermissionName = errors.New("permission name already exists")
	ErrWeakPassword            = errors.New("password does not satisfy policy")

	ErrRoleNotFound       = errors.New("role not found")
	ErrPermissionNotFound = errors.New("permission not found")
	ErrNotFound           = errors.New("not found")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")

	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenRevoked   = errors.New("token revoked")

	ErrRateLimited = errors.New("rate limited")

	// ErrForbidden: el actor no tiene privilegio para la operación.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput cubre campos requeridos vacíos o mal formados.
	ErrInvalidInput = errors.New("invalid input")
)

// AccountLockedError lleva los minutos restantes de lockout.
// errors.Is(err, ErrAccountLocked) es true.
type AccountLockedError struct {
	Minutes int
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %d minute(s)", e.Minutes)
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }

// NotFoundError identifica la entidad que no existe.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound construye un NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// WeakPasswordError lista las reglas de la política que no se cumplen.
type WeakPasswordError struct {
	Reasons []string
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("password does not satisfy policy (%d rule(s) failed)", len(e.Reasons))
}

func (e *WeakPasswordError) Unwrap() error { return ErrWeakPassword }

// TokenReason describe por qué un access token no validó.
type TokenReason string

const (
	ReasonMalformed   TokenReason = "malformed"
	ReasonUnsupported TokenReason = "unsupported"
	ReasonSignature   TokenReason = "signature"
	ReasonExpired     TokenReason = "expired"
	ReasonNotYetValid TokenReason = "not_yet_valid"
	ReasonClaims      TokenReason = "claims"
	ReasonRevoked     TokenReason = "revoked"
)

// TokenError envuelve ErrTokenMalformed, ErrTokenExpired o ErrTokenRevoked
// con la razón específica del fallo.
type TokenError struct {
	Reason TokenReason
	Err    error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("%v (%s)", e.Err, e.Reason)
}

func (e *TokenError) Unwrap() error { return e.Err }

// ReasonOf retorna la razón de un TokenError, o "" si err no lo es.
func ReasonOf(err error) TokenReason {
	var te *TokenError
	if errors.As(err, &te) {
		return te.Reason
	}
	return ""
}

// LockedMinutes retorna los minutos de un AccountLockedError.
func LockedMinutes(err error) (int, bool) {
	var le *AccountLockedError
	if errors.As(err, &le) {
		return le.Minutes, true
	}
	return 0, false
}
