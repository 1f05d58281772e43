package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dropDatabas3/accesscore/internal/domain/repository"
)

// ─── Refresh tokens ───

type refreshRepo struct{ s *Store }

const insertRefresh = `
	INSERT INTO refresh_tokens (token_hash, user_id, tenant_id, issued_at, expires_at)
	VALUES ($1, $2, $3, $4, $5)
`

func (r refreshRepo) ReplaceForUser(ctx context.Context, rt repository.RefreshToken) error {
	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, rt.UserID); err != nil {
			return fmt.Errorf("pg: delete refresh: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertRefresh,
			rt.TokenHash, rt.UserID, rt.TenantID, rt.IssuedAt, rt.ExpiresAt); err != nil {
			return fmt.Errorf("pg: insert refresh: %w", mapErr(err))
		}
		return nil
	})
}

func (r refreshRepo) Rotate(ctx context.Context, oldHash string, next repository.RefreshToken) error {
	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, oldHash)
		if err != nil {
			return fmt.Errorf("pg: delete refresh: %w", err)
		}
		if ok, err := affected(res); err != nil {
			return err
		} else if !ok {
			// otro request rotó primero
			return repository.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, next.UserID); err != nil {
			return fmt.Errorf("pg: delete refresh: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertRefresh,
			next.TokenHash, next.UserID, next.TenantID, next.IssuedAt, next.ExpiresAt); err != nil {
			return fmt.Errorf("pg: insert refresh: %w", mapErr(err))
		}
		return nil
	})
}

func (r refreshRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.RefreshToken, error) {
	const query = `
		SELECT token_hash, user_id, tenant_id, issued_at, expires_at
		FROM refresh_tokens WHERE token_hash = $1
	`
	var rt repository.RefreshToken
	err := r.s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&rt.TokenHash, &rt.UserID, &rt.TenantID, &rt.IssuedAt, &rt.ExpiresAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &rt, nil
}

func (r refreshRepo) DeleteByHash(ctx context.Context, tokenHash string) (bool, error) {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return false, fmt.Errorf("pg: delete refresh: %w", err)
	}
	return affected(res)
}

func (r refreshRepo) DeleteByUser(ctx context.Context, userID string) (int, error) {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("pg: delete refresh: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ─── Revoked tokens ───

type revokedRepo struct{ s *Store }

func (r revokedRepo) Insert(ctx context.Context, rt repository.RevokedToken) (bool, error) {
	if rt.RevokedAt.IsZero() {
		rt.RevokedAt = r.s.now().UTC()
	}
	const query = `
		INSERT INTO revoked_tokens (token_hash, tenant_id, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_hash) DO NOTHING
	`
	res, err := r.s.db.ExecContext(ctx, query, rt.TokenHash, rt.TenantID, rt.ExpiresAt, rt.RevokedAt)
	if err != nil {
		return false, fmt.Errorf("pg: insert revoked: %w", err)
	}
	return affected(res)
}

func (r revokedRepo) Exists(ctx context.Context, tokenHash, tenantID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_hash = $1 AND tenant_id = $2)`
	var ok bool
	if err := r.s.db.QueryRowContext(ctx, query, tokenHash, tenantID).Scan(&ok); err != nil {
		return false, fmt.Errorf("pg: exists revoked: %w", err)
	}
	return ok, nil
}

func (r revokedRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("pg: purge revoked: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ─── Audit ───

type auditRepo struct{ s *Store }

func (r auditRepo) Insert(ctx context.Context, e repository.AuditEntry) error {
	if e.ID == "" {
		e.ID = newID()
	}
	const query = `
		INSERT INTO audit_logs (id, action, details, actor_id, actor_username, ip_address,
			user_agent, tenant_id, entity_type, entity_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.s.db.ExecContext(ctx, query,
		e.ID, e.Action, e.Details, e.ActorID, e.ActorUsername, e.IPAddress,
		e.UserAgent, e.TenantID, e.EntityType, e.EntityID, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("pg: insert audit: %w", err)
	}
	return nil
}
