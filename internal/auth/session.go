package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/dropDatabas3/accesscore/internal/audit"
	"github.com/dropDatabas3/accesscore/internal/domain/autherr"
	"github.com/dropDatabas3/accesscore/internal/domain/repository"
	jwtx "github.com/dropDatabas3/accesscore/internal/jwt"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
)

func (s *service) Refresh(ctx context.Context, refreshToken string, meta Meta) (*RefreshResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.refresh"),
		logger.Op("Refresh"),
	)

	rt, err := s.deps.Refresh.Verify(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	log = log.With(logger.UserID(rt.UserID))

	u, err := s.deps.Users.GetByID(ctx, rt.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, autherr.ErrRefreshTokenNotFound
		}
		return nil, err
	}
	if !u.Enabled {
		return nil, autherr.ErrInvalidCredentials
	}

	roles, err := s.deps.RBAC.UserRoles(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	out := &RefreshResult{UserID: u.ID}
	out.TokenType = tokenTypeBearer
	out.RefreshToken = strings.TrimSpace(refreshToken)
	out.RefreshExpiresAt = rt.ExpiresAt

	// se emite antes de rotar: si falla, el refresh presentado sigue vigente
	access, exp, err := s.deps.Codec.Issue(jwtx.Subject{
		UserID:   u.ID,
		Username: u.Username,
		TenantID: u.TenantID,
		Roles:    roleNames(roles),
	})
	if err != nil {
		log.Error("token issue failed", logger.Err(err))
		return nil, err
	}
	out.AccessToken, out.AccessExpiresAt = access, exp

	if s.deps.RotateRefresh {
		next, err := s.deps.Refresh.Rotate(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		out.RefreshToken, out.RefreshExpiresAt, out.Rotated = next.Token, next.ExpiresAt, true
	}

	e := meta.actor(u.ID, u.Username, u.TenantID).Event(audit.ActionTokenRefresh)
	e.EntityType, e.EntityID = "user", u.ID
	s.emit(ctx, e)
	return out, nil
}

func (s *service) Logout(ctx context.Context, in LogoutInput, meta Meta) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.logout"),
		logger.Op("Logout"),
		logger.UserID(in.UserID),
	)

	u, err := s.deps.Users.GetByID(ctx, in.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return autherr.NotFound("user", in.UserID)
		}
		return err
	}

	n, err := s.deps.Refresh.DeleteForPrincipal(ctx, u.ID)
	if err != nil {
		log.Error("refresh delete failed", logger.Err(err))
		return err
	}
	if in.AccessToken != "" {
		if err := s.RevokeAccessToken(ctx, in.AccessToken, meta); err != nil {
			log.Warn("access token not revoked", logger.Err(err))
			return err
		}
	}

	e := meta.actor(u.ID, u.Username, u.TenantID).Event(audit.ActionLogout)
	e.Details = "user logged out"
	e.EntityType, e.EntityID = "user", u.ID
	s.emit(ctx, e)
	log.Info("logout ok", logger.Count(n))
	return nil
}

func (s *service) Authenticate(ctx context.Context, accessToken string) (*jwtx.Claims, error) {
	claims, err := s.deps.Codec.Validate(accessToken)
	if err != nil {
		return nil, err
	}
	revoked, err := s.deps.Revocations.IsRevoked(ctx, accessToken, claims.TenantID)
	if err != nil {
		// sin poder consultar el registro no se acepta el token
		logger.From(ctx).Error("revocation lookup failed",
			logger.Component("auth.authenticate"), logger.Err(err))
		return nil, err
	}
	if revoked {
		return nil, &autherr.TokenError{Reason: autherr.ReasonRevoked, Err: autherr.ErrTokenRevoked}
	}
	return claims, nil
}

func (s *service) RevokeAccessToken(ctx context.Context, accessToken string, meta Meta) error {
	claims, err := s.deps.Codec.Validate(accessToken)
	if err != nil {
		// un token vencido ya no sirve: nada que revocar
		if errors.Is(err, autherr.ErrTokenExpired) {
			return nil
		}
		return err
	}
	created, err := s.deps.Revocations.Revoke(ctx, accessToken, claims.TenantID, claims.ExpiresAtTime())
	if err != nil {
		return err
	}
	if created {
		e := meta.actor(claims.UserID, claims.Username(), claims.TenantID).Event(audit.ActionTokenRevoked)
		e.EntityType, e.EntityID = "token", claims.ID
		s.emit(ctx, e)
	}
	return nil
}
