package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/accesscore/internal/domain/autherr"
)

// FromDomain traduce la taxonomía de autherr al envelope HTTP. Lo que no
// reconoce sale como 500 genérico; la causa queda solo en Err.
func FromDomain(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	if mins, ok := autherr.LockedMinutes(err); ok {
		return ErrAccountLocked.
			WithDetail(fmt.Sprintf("Intente nuevamente en %d minuto(s).", mins)).
			WithRetryAfter(mins * 60).
			WithCause(err)
	}

	var weak *autherr.WeakPasswordError
	if stderrors.As(err, &weak) {
		return ErrWeakPassword.WithDetail(strings.Join(weak.Reasons, "; ")).WithCause(err)
	}

	for _, m := range table {
		if stderrors.Is(err, m.target) {
			return m.app.WithCause(err)
		}
	}
	return ErrInternalServerError.WithCause(err)
}

// El orden importa: los específicos antes que ErrNotFound.
var table = []struct {
	target error
	app    *AppError
}{
	{autherr.ErrInvalidCredentials, ErrInvalidCredentials},
	{autherr.ErrAccountLocked, ErrAccountLocked},
	{autherr.ErrRateLimited, ErrRateLimitExceeded},
	{autherr.ErrForbidden, ErrForbidden},
	{autherr.ErrDuplicateUsername, ErrUsernameTaken},
	{autherr.ErrDuplicateEmail, ErrEmailAlreadyInUse},
	{autherr.ErrDuplicatePhone, ErrPhoneAlreadyInUse},
	{autherr.ErrDuplicateRoleName, ErrRoleNameTaken},
	{autherr.ErrDuplicatePermissionName, ErrPermissionNameTaken},
	{autherr.ErrWeakPassword, ErrWeakPassword},
	{autherr.ErrRoleNotFound, ErrRoleNotFound},
	{autherr.ErrPermissionNotFound, ErrPermissionNotFound},
	{autherr.ErrNotFound, ErrNotFound},
	{autherr.ErrRefreshTokenNotFound, ErrRefreshTokenNotFound},
	{autherr.ErrRefreshTokenExpired, ErrRefreshTokenExpired},
	{autherr.ErrTokenExpired, ErrTokenExpired},
	{autherr.ErrTokenRevoked, ErrTokenRevoked},
	{autherr.ErrTokenMalformed, ErrTokenInvalid},
	{autherr.ErrInvalidInput, ErrBadRequest},
}
