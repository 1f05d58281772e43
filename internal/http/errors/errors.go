// Package errors define el envelope de error del protocolo HTTP y el mapeo
// de la taxonomía de dominio a status codes.
package errors

import "fmt"

// AppError es la forma estándar de un error expuesto al cliente.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // causa, solo para logs

	// RetryAfter en segundos; 0 = sin header.
	RetryAfter int `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// New crea un AppError.
func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// Wrap crea un AppError envolviendo err.
func Wrap(err error, status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// FromError retorna err si ya es un *AppError; si no, lo traduce con FromDomain.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return FromDomain(err)
}

// WithDetail devuelve una COPIA con detail; no muta las variables base.
func (e *AppError) WithDetail(detail string) *AppError {
	c := *e
	c.Detail = detail
	return &c
}

// WithCause devuelve una COPIA con la causa.
func (e *AppError) WithCause(err error) *AppError {
	c := *e
	c.Err = err
	return &c
}

// WithRetryAfter devuelve una COPIA que emite Retry-After.
func (e *AppError) WithRetryAfter(seconds int) *AppError {
	c := *e
	c.RetryAfter = seconds
	return &c
}
