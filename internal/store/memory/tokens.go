package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/accesscore/internal/domain/repository"
)

type refreshRepo struct{ s *Store }

func (r refreshRepo) ReplaceForUser(ctx context.Context, rt repository.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.refreshUser[rt.UserID]; ok {
		delete(s.refresh, old)
	}
	s.refresh[rt.TokenHash] = rt
	s.refreshUser[rt.UserID] = rt.TokenHash
	return nil
}

func (r refreshRepo) Rotate(ctx context.Context, oldHash string, next repository.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.refresh[oldHash]
	if !ok {
		return repository.ErrNotFound
	}
	delete(s.refresh, oldHash)
	delete(s.refreshUser, old.UserID)
	if cur, ok := s.refreshUser[next.UserID]; ok {
		delete(s.refresh, cur)
	}
	s.refresh[next.TokenHash] = next
	s.refreshUser[next.UserID] = next.TokenHash
	return nil
}

func (r refreshRepo) GetByHash(_ context.Context, tokenHash string) (*repository.RefreshToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rt, ok := r.s.refresh[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rt, nil
}

func (r refreshRepo) DeleteByHash(_ context.Context, tokenHash string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.refresh[tokenHash]
	if !ok {
		return false, nil
	}
	delete(s.refresh, tokenHash)
	if s.refreshUser[rt.UserID] == tokenHash {
		delete(s.refreshUser, rt.UserID)
	}
	return true, nil
}

func (r refreshRepo) DeleteByUser(_ context.Context, userID string) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.refreshUser[userID]
	if !ok {
		return 0, nil
	}
	delete(s.refresh, h)
	delete(s.refreshUser, userID)
	return 1, nil
}

type revokedRepo struct{ s *Store }

func (r revokedRepo) Insert(_ context.Context, rt repository.RevokedToken) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revoked[rt.TokenHash]; ok {
		return false, nil
	}
	s.revoked[rt.TokenHash] = rt
	return true, nil
}

func (r revokedRepo) Exists(_ context.Context, tokenHash, tenantID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rt, ok := r.s.revoked[tokenHash]
	return ok && rt.TenantID == tenantID, nil
}

func (r revokedRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for h, rt := range s.revoked {
		if rt.ExpiresAt.Before(now) {
			delete(s.revoked, h)
			n++
		}
	}
	return n, nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Insert(ctx context.Context, e repository.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	r.s.audit = append(r.s.audit, e)
	r.s.mu.Unlock()
	return nil
}
