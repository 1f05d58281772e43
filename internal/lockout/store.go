package lockout

import (
	"context"
	"time"
)

// State es el estado de lockout de un identificador.
//
//	Clear            -> no hay entrada
//	Accumulating(n)  -> Failures = n, LockedUntil zero
//	Locked(until)    -> LockedUntil != zero
type State struct {
	Failures    int       `json:"failures"`
	LockedUntil time.Time `json:"locked_until,omitempty"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

// LockedAt reporta si el estado está bloqueado en now.
func (s State) LockedAt(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// Expired reporta un lock cuyo until ya pasó (pendiente de limpieza lazy).
func (s State) Expired(now time.Time) bool {
	return !s.LockedUntil.IsZero() && !now.Before(s.LockedUntil)
}

// UpdateFunc recibe el estado actual (exists=false si no hay entrada) y
// retorna el nuevo estado, si se conserva y su TTL de reclamación (0 = sin TTL).
// Un store optimista puede llamarla más de una vez: no debe tener efectos
// fuera de su resultado salvo los que se reinician en cada llamada.
type UpdateFunc func(cur State, exists bool) (next State, keep bool, ttl time.Duration)

// Store mapea identificador → State con actualización atómica por clave.
type Store interface {
	// Update aplica fn con exclusión sobre key y retorna el estado resultante.
	Update(ctx context.Context, key string, fn UpdateFunc) (State, error)
	Get(ctx context.Context, key string) (State, bool, error)
	Delete(ctx context.Context, key string) error
}
