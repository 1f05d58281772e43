// Package refresh gestiona el ciclo de vida de los refresh tokens opacos:
// uno vivo por principal, expiración lazy y rotación.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/accesscore/internal/domain/autherr"
	"github.com/dropDatabas3/accesscore/internal/domain/repository"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
	tokens "github.com/dropDatabas3/accesscore/internal/security/token"
	"github.com/dropDatabas3/accesscore/internal/util/keylock"
)

// ErrInvalidTTL se retorna si el TTL configurado no es positivo.
var ErrInvalidTTL = errors.New("refresh: ttl must be > 0")

// Issued es un refresh token recién emitido. Token es el string opaco que
// viaja al cliente; en storage solo queda su digest.
type Issued struct {
	Token     string
	UserID    string
	TenantID  string
	ExpiresAt time.Time
}

// Store serializa la emisión por principal con un lock por clave; principals
// distintos no se bloquean entre sí.
type Store struct {
	repo  repository.RefreshTokenRepository
	ttl   time.Duration
	now   func() time.Time
	locks *keylock.KeyedMutex
	gen   func() (string, error)
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(repo repository.RefreshTokenRepository, ttl time.Duration, opts ...Option) (*Store, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	s := &Store{
		repo:  repo,
		ttl:   ttl,
		now:   time.Now,
		locks: keylock.NewKeyedMutex(),
		gen:   func() (string, error) { return tokens.GenerateOpaqueToken(tokens.RefreshTokenBytes) },
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) mint(userID, tenantID string) (Issued, repository.RefreshToken, error) {
	raw, err := s.gen()
	if err != nil {
		return Issued{}, repository.RefreshToken{}, fmt.Errorf("refresh: generate: %w", err)
	}
	now := s.now()
	row := repository.RefreshToken{
		TokenHash: tokens.Digest(raw),
		UserID:    userID,
		TenantID:  tenantID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	return Issued{Token: raw, UserID: userID, TenantID: tenantID, ExpiresAt: row.ExpiresAt}, row, nil
}

// Create emite un token nuevo para el principal y reemplaza cualquier otro.
func (s *Store) Create(ctx context.Context, userID, tenantID string) (Issued, error) {
	if strings.TrimSpace(userID) == "" {
		return Issued{}, errors.New("refresh: user id required")
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return Issued{}, err
	}
	out, row, err := s.mint(userID, tenantID)
	if err != nil {
		return Issued{}, err
	}
	if err := s.repo.ReplaceForUser(ctx, row); err != nil {
		return Issued{}, fmt.Errorf("refresh: replace: %w", err)
	}
	return out, nil
}

// Verify resuelve el principal dueño de raw. Un token vencido se borra y se
// reporta como ErrRefreshTokenExpired, distinto de ErrRefreshTokenNotFound.
func (s *Store) Verify(ctx context.Context, raw string) (*repository.RefreshToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, autherr.ErrRefreshTokenNotFound
	}
	hash := tokens.Digest(raw)
	rt, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, autherr.ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("refresh: get: %w", err)
	}
	if !s.now().Before(rt.ExpiresAt) {
		if _, err := s.repo.DeleteByHash(ctx, hash); err != nil {
			logger.From(ctx).Warn("refresh: delete expired failed",
				logger.Component("refresh"), logger.UserID(rt.UserID), logger.Err(err))
		}
		return nil, autherr.ErrRefreshTokenExpired
	}
	return rt, nil
}

// Rotate consume raw y emite el siguiente token del mismo principal. De dos
// rotaciones concurrentes con el mismo token gana una; la otra recibe
// ErrRefreshTokenNotFound.
func (s *Store) Rotate(ctx context.Context, raw string) (Issued, error) {
	cur, err := s.Verify(ctx, raw)
	if err != nil {
		return Issued{}, err
	}
	unlock := s.locks.Lock(cur.UserID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return Issued{}, err
	}
	out, row, err := s.mint(cur.UserID, cur.TenantID)
	if err != nil {
		return Issued{}, err
	}
	if err := s.repo.Rotate(ctx, cur.TokenHash, row); err != nil {
		if repository.IsNotFound(err) {
			return Issued{}, autherr.ErrRefreshTokenNotFound
		}
		return Issued{}, fmt.Errorf("refresh: rotate: %w", err)
	}
	return out, nil
}

// DeleteForPrincipal borra los refresh tokens del usuario y retorna cuántos había.
func (s *Store) DeleteForPrincipal(ctx context.Context, userID string) (int, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()
	n, err := s.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("refresh: delete: %w", err)
	}
	return n, nil
}
