package repository

import (
	"context"
	"time"
)

// RefreshToken representa un refresh token persistido. Solo se guarda el hash
// del string opaco; hay como máximo uno por usuario.
type RefreshToken struct {
	TokenHash string
	UserID    string
	TenantID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshTokenRepository define operaciones sobre refresh tokens.
type RefreshTokenRepository interface {
	// ReplaceForUser borra cualquier token del usuario e inserta rt, atómicamente.
	ReplaceForUser(ctx context.Context, rt RefreshToken) error

	// Rotate borra el token oldHash e inserta next en la misma transacción.
	// Retorna ErrNotFound si oldHash ya no existe.
	Rotate(ctx context.Context, oldHash string, next RefreshToken) error

	// GetByHash retorna ErrNotFound si no existe.
	GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	DeleteByHash(ctx context.Context, tokenHash string) (bool, error)
	DeleteByUser(ctx context.Context, userID string) (int, error)
}

// RevokedToken es una entrada del registro de revocación.
type RevokedToken struct {
	TokenHash string
	TenantID  string
	ExpiresAt time.Time
	RevokedAt time.Time
}

// RevokedTokenRepository define operaciones sobre tokens revocados.
type RevokedTokenRepository interface {
	// Insert es idempotente: retorna false si el hash ya estaba registrado.
	Insert(ctx context.Context, rt RevokedToken) (bool, error)
	Exists(ctx context.Context, tokenHash, tenantID string) (bool, error)
	// DeleteExpired borra las entradas con ExpiresAt < now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
