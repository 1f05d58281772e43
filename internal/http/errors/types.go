package errors

import "net/http"

// =================================================================================
// ERRORES PREDEFINIDOS
// =================================================================================

// 400
var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "La solicitud es inválida.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidJSON = &AppError{
		Code:       "INVALID_JSON",
		Message:    "El cuerpo de la solicitud no es un JSON válido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMissingFields = &AppError{
		Code:       "MISSING_FIELDS",
		Message:    "Faltan campos requeridos.",
		HTTPStatus: http.StatusBadRequest,
	}
)

// 401
var (
	ErrInvalidCredentials = &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "Usuario o contraseña incorrectos.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenMissing = &AppError{
		Code:       "TOKEN_MISSING",
		Message:    "Falta el token de acceso.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenInvalid = &AppError{
		Code:       "TOKEN_INVALID",
		Message:    "El token es inválido.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpired = &AppError{
		Code:       "TOKEN_EXPIRED",
		Message:    "El token ha expirado.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenRevoked = &AppError{
		Code:       "TOKEN_REVOKED",
		Message:    "El token fue revocado.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrRefreshTokenNotFound = &AppError{
		Code:       "REFRESH_TOKEN_NOT_FOUND",
		Message:    "Refresh token inválido.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrRefreshTokenExpired = &AppError{
		Code:       "REFRESH_TOKEN_EXPIRED",
		Message:    "El refresh token ha expirado.",
		HTTPStatus: http.StatusUnauthorized,
	}
)

// 403
var (
	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "No tiene permisos para realizar esta acción.",
		HTTPStatus: http.StatusForbidden,
	}
)

// 404
var (
	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "El recurso solicitado no existe.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrRoleNotFound = &AppError{
		Code:       "ROLE_NOT_FOUND",
		Message:    "El rol no existe.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrPermissionNotFound = &AppError{
		Code:       "PERMISSION_NOT_FOUND",
		Message:    "El permiso no existe.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMethodNotAllowed = &AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "Método no permitido.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}
)

// 409
var (
	ErrUsernameTaken = &AppError{
		Code:       "USERNAME_TAKEN",
		Message:    "El nombre de usuario ya está en uso.",
		HTTPStatus: http.StatusConflict,
	}

	ErrEmailAlreadyInUse = &AppError{
		Code:       "EMAIL_IN_USE",
		Message:    "El email ya está registrado.",
		HTTPStatus: http.StatusConflict,
	}

	ErrPhoneAlreadyInUse = &AppError{
		Code:       "PHONE_IN_USE",
		Message:    "El teléfono ya está registrado.",
		HTTPStatus: http.StatusConflict,
	}

	ErrRoleNameTaken = &AppError{
		Code:       "ROLE_NAME_TAKEN",
		Message:    "Ya existe un rol con ese nombre.",
		HTTPStatus: http.StatusConflict,
	}

	ErrPermissionNameTaken = &AppError{
		Code:       "PERMISSION_NAME_TAKEN",
		Message:    "Ya existe un permiso con ese nombre.",
		HTTPStatus: http.StatusConflict,
	}
)

// 422
var (
	ErrWeakPassword = &AppError{
		Code:       "WEAK_PASSWORD",
		Message:    "La contraseña no cumple la política.",
		HTTPStatus: http.StatusUnprocessableEntity,
	}
)

// 423
var (
	ErrAccountLocked = &AppError{
		Code:       "ACCOUNT_LOCKED",
		Message:    "La cuenta está bloqueada temporalmente.",
		HTTPStatus: http.StatusLocked,
	}
)

// 429
var (
	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Ha excedido el límite de solicitudes. Intente más tarde.",
		HTTPStatus: http.StatusTooManyRequests,
	}
)

// 500+
var (
	ErrInternalServerError = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Ocurrió un error interno en el servidor.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "El servicio no está disponible temporalmente.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
