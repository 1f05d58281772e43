// Package cache provee un cliente key/value con TTL y dos backends:
//
//   - memory: in-process (go-cache), para un solo nodo y tests
//   - redis: distribuido, compartido entre réplicas
//
// Lo usa el registro de revocación como read-through de entradas positivas.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client define las operaciones de cache.
type Client interface {
	// Get retorna ErrNotFound si la key no existe o expiró.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda value con ttl; ttl 0 = sin expiración.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Config para construir un Client.
type Config struct {
	Driver     string // "memory" | "redis"
	Prefix     string
	DefaultTTL time.Duration // solo memory

	// Redis reutiliza un cliente existente (compartido con lockout/rate).
	Redis *redis.Client
}

var ErrNotFound = errors.New("cache: key not found")

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// New crea un cliente según cfg.Driver.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("cache: redis driver requires a client")
		}
		return NewRedis(cfg.Redis, cfg.Prefix), nil
	case "memory", "":
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	default:
		return nil, fmt.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
