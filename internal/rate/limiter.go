// Package rate implementa el rate limiter de ventana deslizante por
// (IP, clase de endpoint).
package rate

import (
	"context"
	"errors"
	"time"
)

const DefaultWindow = time.Minute

// ErrInvalidLimit se retorna cuando limit <= 0.
var ErrInvalidLimit = errors.New("rate: limit must be > 0")

type Result struct {
	Allowed     bool
	Limit       int
	Remaining   int
	CurrentHits int
	// RetryAfter: cuánto falta para que el hit más viejo salga de la ventana.
	// Solo se completa cuando Allowed=false.
	RetryAfter time.Duration
}

// Limiter decide si un hit más entra en la ventana de key.
// Un hit rechazado no se registra.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (Result, error)
}
