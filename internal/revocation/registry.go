// Package revocation implementa el registro de access tokens revocados.
//
// Solo se cachean resultados positivos: una revocación hecha en otra réplica
// se ve en la próxima consulta al storage, nunca queda tapada por un "no".
package revocation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/accesscore/internal/cache"
	"github.com/dropDatabas3/accesscore/internal/domain/repository"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
	tokens "github.com/dropDatabas3/accesscore/internal/security/token"
)

const (
	cacheHit = "1"

	// DefaultCacheTTL acota cuánto vive una entrada positiva leída del storage.
	DefaultCacheTTL = 5 * time.Minute
)

type Registry struct {
	repo     repository.RevokedTokenRepository
	cache    cache.Client
	cacheTTL time.Duration
	sf       singleflight.Group
	now      func() time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithCache habilita el read-through. Sin cache cada consulta va al storage.
func WithCache(c cache.Client, ttl time.Duration) Option {
	return func(r *Registry) {
		r.cache = c
		if ttl > 0 {
			r.cacheTTL = ttl
		}
	}
}

func New(repo repository.RevokedTokenRepository, opts ...Option) *Registry {
	r := &Registry{repo: repo, cacheTTL: DefaultCacheTTL, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

func cacheKey(tenantID, hash string) string { return tenantID + ":" + hash }

// Revoke registra token hasta expiresAt. Revocar dos veces no es error;
// retorna false si ya estaba revocado.
func (r *Registry) Revoke(ctx context.Context, token, tenantID string, expiresAt time.Time) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}
	hash := tokens.Digest(token)
	now := r.now()
	created, err := r.repo.Insert(ctx, repository.RevokedToken{
		TokenHash: hash,
		TenantID:  tenantID,
		ExpiresAt: expiresAt,
		RevokedAt: now,
	})
	if err != nil {
		return false, fmt.Errorf("revocation: insert: %w", err)
	}
	r.remember(ctx, tenantID, hash, expiresAt.Sub(now))
	return created, nil
}

// IsRevoked consulta cache y luego storage. Consultas concurrentes por el
// mismo token comparten una sola ida al storage.
func (r *Registry) IsRevoked(ctx context.Context, token, tenantID string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}
	hash := tokens.Digest(token)
	key := cacheKey(tenantID, hash)

	if r.cache != nil {
		if v, err := r.cache.Get(ctx, key); err == nil && v == cacheHit {
			return true, nil
		} else if err != nil && !cache.IsNotFound(err) {
			logger.From(ctx).Warn("revocation: cache get failed",
				logger.Component("revocation"), logger.Err(err))
		}
	}

	v, err, _ := r.sf.Do(key, func() (any, error) {
		return r.repo.Exists(ctx, hash, tenantID)
	})
	if err != nil {
		return false, fmt.Errorf("revocation: exists: %w", err)
	}
	revoked := v.(bool)
	if revoked {
		r.remember(ctx, tenantID, hash, r.cacheTTL)
	}
	return revoked, nil
}

// PurgeExpired borra las entradas con expiración anterior a now. El criterio
// se evalúa contra ese único snapshot, así una entrada vigente nunca se borra.
func (r *Registry) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := r.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("revocation: purge: %w", err)
	}
	return n, nil
}

// Now expone el reloj del registro para los loops de purga.
func (r *Registry) Now() time.Time { return r.now() }

func (r *Registry) remember(ctx context.Context, tenantID, hash string, ttl time.Duration) {
	if r.cache == nil || ttl <= 0 {
		return
	}
	if ttl > r.cacheTTL {
		ttl = r.cacheTTL
	}
	if err := r.cache.Set(ctx, cacheKey(tenantID, hash), cacheHit, ttl); err != nil {
		logger.From(ctx).Warn("revocation: cache set failed",
			logger.Component("revocation"), logger.Err(err))
	}
}
