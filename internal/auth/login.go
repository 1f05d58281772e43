package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/accesscore/internal/audit"
	"github.com/dropDatabas3/accesscore/internal/domain/autherr"
	"github.com/dropDatabas3/accesscore/internal/domain/repository"
	jwtx "github.com/dropDatabas3/accesscore/internal/jwt"
	"github.com/dropDatabas3/accesscore/internal/lockout"
	"github.com/dropDatabas3/accesscore/internal/notify"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
	"github.com/dropDatabas3/accesscore/internal/observability/metrics"
	"github.com/dropDatabas3/accesscore/internal/security/password"
)

// Razones de login fallido. Van al evento de auditoría, nunca al cliente.
const (
	reasonAccountLocked = "account_locked"
	reasonUnknownUser   = "user_not_found"
	reasonBadPassword   = "bad_password"
	reasonUserDisabled  = "user_disabled"
	reasonWrongTenant   = "tenant_mismatch"
	reasonMissingFields = "missing_fields"
)

func (s *service) Login(ctx context.Context, in LoginInput, meta Meta) (*LoginResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.login"),
		logger.Op("Login"),
	)

	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		s.loginFailed(ctx, username, nil, meta, reasonMissingFields, 0)
		metrics.RecordLogin(metrics.LoginFailed)
		return nil, autherr.ErrInvalidCredentials
	}
	log = log.With(logger.Username(username))

	// Paso 1: lockout antes de tocar credenciales
	mins, err := s.deps.Lockout.MinutesRemaining(ctx, username)
	if err != nil {
		log.Error("lockout check failed", logger.Err(err))
		return nil, err
	}
	if mins > 0 {
		s.loginFailed(ctx, username, nil, meta, reasonAccountLocked, 0)
		metrics.RecordLogin(metrics.LoginLocked)
		return nil, &autherr.AccountLockedError{Minutes: mins}
	}

	// Paso 2: credenciales
	u, reason, err := s.checkCredentials(ctx, username, in.Password, meta)
	if err != nil {
		log.Error("user lookup failed", logger.Err(err))
		return nil, err
	}
	if reason != "" {
		s.recordFailure(ctx, username, u, meta, reason)
		metrics.RecordLogin(metrics.LoginFailed)
		return nil, autherr.ErrInvalidCredentials
	}

	// Paso 3: éxito
	if err := s.deps.Lockout.RecordSuccess(ctx, username); err != nil {
		log.Warn("lockout reset failed", logger.Err(err))
	}

	roles, err := s.deps.RBAC.UserRoles(ctx, u.ID)
	if err != nil {
		log.Error("roles lookup failed", logger.Err(err))
		return nil, err
	}
	names := roleNames(roles)

	pair, err := s.issuePair(ctx, u, names)
	if err != nil {
		log.Error("token issue failed", logger.Err(err))
		return nil, err
	}

	e := meta.actor(u.ID, u.Username, u.TenantID).Event(audit.ActionLogin)
	e.Details = "user logged in"
	e.EntityType, e.EntityID = "user", u.ID
	s.emit(ctx, e)
	metrics.RecordLogin(metrics.LoginSuccess)
	log.Info("login ok", logger.UserID(u.ID), logger.TenantID(u.TenantID))

	return &LoginResult{
		TokenPair: pair,
		UserID:    u.ID,
		Username:  u.Username,
		Email:     u.Email,
		TenantID:  u.TenantID,
		Roles:     names,
	}, nil
}

// checkCredentials retorna una razón != "" si el login no procede.
func (s *service) checkCredentials(ctx context.Context, username, plain string, meta Meta) (*repository.User, string, error) {
	u, err := s.deps.Users.GetByUsername(ctx, username)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, reasonUnknownUser, nil
		}
		return nil, "", err
	}
	if meta.TenantID != "" && u.TenantID != meta.TenantID {
		return u, reasonWrongTenant, nil
	}
	if !password.Verify(plain, u.PasswordHash) {
		return u, reasonBadPassword, nil
	}
	if !u.Enabled {
		return u, reasonUserDisabled, nil
	}
	return u, "", nil
}

// issuePair emite access + refresh. Si el refresh falla el access token se
// descarta: el caller ve los dos o ninguno.
func (s *service) issuePair(ctx context.Context, u *repository.User, roles []string) (TokenPair, error) {
	if err := ctx.Err(); err != nil {
		return TokenPair{}, err
	}
	access, exp, err := s.deps.Codec.Issue(jwtx.Subject{
		UserID:   u.ID,
		Username: u.Username,
		TenantID: u.TenantID,
		Roles:    roles,
	})
	if err != nil {
		return TokenPair{}, err
	}
	rt, err := s.deps.Refresh.Create(ctx, u.ID, u.TenantID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  exp,
		RefreshToken:     rt.Token,
		RefreshExpiresAt: rt.ExpiresAt,
		TokenType:        tokenTypeBearer,
	}, nil
}

func (s *service) recordFailure(ctx context.Context, username string, u *repository.User, meta Meta, reason string) {
	log := logger.From(ctx).With(logger.Component("auth.login"), logger.Username(username))

	st, err := s.deps.Lockout.RecordFailure(ctx, username)
	if err != nil {
		log.Error("lockout record failed", logger.Err(err))
	}
	s.loginFailed(ctx, username, u, meta, reason, st.Failures)

	if !st.JustLocked {
		return
	}
	log.Warn("account locked", logger.Attempts(st.Failures), logger.Until(st.LockedUntil))
	metrics.RecordLockout()
	if s.deps.Notifier == nil || u == nil {
		return
	}
	n := notify.LockoutNotice{
		Username: u.Username,
		Email:    u.Email,
		Until:    st.LockedUntil,
		Minutes:  lockout.MinutesUntil(s.deps.Now(), st.LockedUntil),
	}
	if err := s.deps.Notifier.NotifyLocked(ctx, n); err != nil {
		log.Warn("lockout notification failed", logger.Err(err))
	}
}

func (s *service) loginFailed(ctx context.Context, username string, u *repository.User, meta Meta, reason string, attempts int) {
	var id, tenant string
	if u != nil {
		id, tenant = u.ID, u.TenantID
	}
	e := meta.actor(id, username, tenant).Event(audit.ActionLoginFailed)
	e.Details = fmt.Sprintf("reason=%s", reason)
	if attempts > 0 {
		e.Details += fmt.Sprintf(" attempts=%d", attempts)
	}
	s.emit(ctx, e)
}
