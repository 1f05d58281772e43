package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/accesscore/internal/audit"
	"github.com/dropDatabas3/accesscore/internal/domain/autherr"
	"github.com/dropDatabas3/accesscore/internal/domain/repository"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
	"github.com/dropDatabas3/accesscore/internal/security/password"
)

func (s *service) Register(ctx context.Context, in RegisterInput, meta Meta) (*RegisterResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.register"),
		logger.Op("Register"),
	)

	in = normalizeRegister(in, meta)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", autherr.ErrInvalidInput)
	}
	if !strings.Contains(in.Email, "@") {
		return nil, fmt.Errorf("%w: email", autherr.ErrInvalidInput)
	}
	log = log.With(logger.Username(in.Username), logger.TenantID(in.TenantID))

	if ok, reasons := s.deps.Policy.Validate(in.Password); !ok {
		return nil, &autherr.WeakPasswordError{Reasons: reasons}
	}

	// Dos chequeos independientes para distinguir el error.
	taken, err := s.deps.Users.ExistsByUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, autherr.ErrDuplicateUsername
	}
	taken, err = s.deps.Users.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, autherr.ErrDuplicateEmail
	}

	names := in.Roles
	if len(names) == 0 {
		names = []string{s.deps.DefaultRole}
	}
	roles := make([]repository.Role, 0, len(names))
	for _, name := range names {
		r, err := s.deps.RBAC.FindRoleByName(ctx, in.TenantID, name)
		if err != nil {
			if errors.Is(err, autherr.ErrRoleNotFound) {
				return nil, fmt.Errorf("%w: %s", autherr.ErrRoleNotFound, name)
			}
			return nil, err
		}
		roles = append(roles, *r)
	}

	hash, err := password.Hash(s.deps.Hash, in.Password)
	if err != nil {
		log.Error("password hash failed", logger.Err(err))
		return nil, err
	}

	now := s.deps.Now()
	u := &repository.User{
		TenantID:     in.TenantID,
		Username:     in.Username,
		Email:        in.Email,
		Phone:        in.Phone,
		FullName:     displayName(in),
		PasswordHash: hash,
		Enabled:      true,
		CreatedAt:    now,
	}
	links := make([]repository.UserRole, 0, len(roles))
	for _, r := range roles {
		links = append(links, repository.UserRole{
			RoleID:     r.ID,
			TenantID:   in.TenantID,
			AssignedBy: "self-registration",
			AssignedAt: now,
		})
	}

	if err := s.deps.Users.Create(ctx, u, links); err != nil {
		// carrera con otro registro: el constraint decide
		switch {
		case repository.ConflictOn(err, repository.ConstraintUsername):
			return nil, autherr.ErrDuplicateUsername
		case repository.ConflictOn(err, repository.ConstraintEmail):
			return nil, autherr.ErrDuplicateEmail
		case repository.ConflictOn(err, repository.ConstraintPhone):
			return nil, autherr.ErrDuplicatePhone
		case repository.IsNotFound(err):
			return nil, autherr.ErrRoleNotFound
		}
		log.Error("create user failed", logger.Err(err))
		return nil, err
	}

	e := meta.actor(u.ID, u.Username, u.TenantID).Event(audit.ActionRegister)
	e.Details = "new user registered: " + u.Username
	e.EntityType, e.EntityID = "user", u.ID
	s.emit(ctx, e)
	log.Info("user registered", logger.UserID(u.ID))

	return &RegisterResult{User: u, Roles: roleNames(roles)}, nil
}

func normalizeRegister(in RegisterInput, meta Meta) RegisterInput {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.TenantID = strings.TrimSpace(in.TenantID)
	if in.TenantID == "" {
		in.TenantID = meta.TenantID
	}
	if in.Phone != nil {
		p := strings.TrimSpace(*in.Phone)
		if p == "" {
			in.Phone = nil
		} else {
			in.Phone = &p
		}
	}
	seen := make(map[string]struct{}, len(in.Roles))
	roles := in.Roles[:0:0]
	for _, r := range in.Roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		roles = append(roles, r)
	}
	in.Roles = roles
	return in
}

// displayName = "first last"; si ambos faltan, el username.
func displayName(in RegisterInput) string {
	n := strings.TrimSpace(in.FirstName + " " + in.LastName)
	if n == "" {
		return in.Username
	}
	return n
}
