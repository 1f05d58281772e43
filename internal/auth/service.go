// Package auth orquesta login, registro, refresh y logout sobre los
// componentes de seguridad: codec, refresh store, registro de revocación,
// lockout, RBAC y auditoría.
package auth

import (
	"context"
	"time"

	"github.com/dropDatabas3/accesscore/internal/audit"
	"github.com/dropDatabas3/accesscore/internal/domain/repository"
	jwtx "github.com/dropDatabas3/accesscore/internal/jwt"
	"github.com/dropDatabas3/accesscore/internal/lockout"
	"github.com/dropDatabas3/accesscore/internal/notify"
	"github.com/dropDatabas3/accesscore/internal/rbac"
	"github.com/dropDatabas3/accesscore/internal/refresh"
	"github.com/dropDatabas3/accesscore/internal/revocation"
	"github.com/dropDatabas3/accesscore/internal/security/password"
)

// Service define las operaciones de sesión.
type Service interface {
	Login(ctx context.Context, in LoginInput, meta Meta) (*LoginResult, error)
	Register(ctx context.Context, in RegisterInput, meta Meta) (*RegisterResult, error)
	Refresh(ctx context.Context, refreshToken string, meta Meta) (*RefreshResult, error)
	Logout(ctx context.Context, in LogoutInput, meta Meta) error

	// Authenticate valida un access token y consulta el registro de revocación.
	Authenticate(ctx context.Context, accessToken string) (*jwtx.Claims, error)
	// RevokeAccessToken agrega el token al registro hasta su expiración original.
	RevokeAccessToken(ctx context.Context, accessToken string, meta Meta) error
}

// Meta son los datos del request que viajan a la auditoría.
type Meta struct {
	IP        string
	UserAgent string
	TenantID  string
}

func (m Meta) actor(id, username, tenantID string) audit.Actor {
	if tenantID == "" {
		tenantID = m.TenantID
	}
	return audit.Actor{ID: id, Username: username, IP: m.IP, UserAgent: m.UserAgent, TenantID: tenantID}
}

type LoginInput struct {
	Username string
	Password string
}

// TokenPair es el par emitido al cliente.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	TokenType        string
}

type LoginResult struct {
	TokenPair
	UserID   string
	Username string
	Email    string
	TenantID string
	Roles    []string
}

// RegisterInput es la única forma de entrada del registro. Los campos de
// perfil son opcionales.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     *string
	Roles     []string
	TenantID  string
}

type RegisterResult struct {
	User  *repository.User
	Roles []string
}

type RefreshResult struct {
	TokenPair
	UserID string
	// Rotated es true si se emitió un refresh token nuevo.
	Rotated bool
}

type LogoutInput struct {
	UserID string
	// AccessToken, si viene, se revoca.
	AccessToken string
}

// Deps contiene las dependencias del servicio de sesión.
type Deps struct {
	Users       repository.UserRepository
	RBAC        rbac.Service
	Codec       *jwtx.Codec
	Refresh     *refresh.Store
	Revocations *revocation.Registry
	Lockout     *lockout.Guard
	Audit       audit.Recorder
	Notifier    notify.LockoutNotifier // nil = sin aviso

	Policy      password.Policy
	Hash        password.Params
	DefaultRole string
	// RotateRefresh emite un refresh token nuevo en cada refresh.
	RotateRefresh bool

	Now func() time.Time
}

type service struct {
	deps Deps
}

// NewService crea el orquestador de sesión.
func NewService(deps Deps) Service {
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.DefaultRole == "" {
		deps.DefaultRole = rbac.RoleUser
	}
	if deps.Hash == (password.Params{}) {
		deps.Hash = password.Default
	}
	return &service{deps: deps}
}

const tokenTypeBearer = "Bearer"

func (s *service) emit(ctx context.Context, e audit.Event) {
	audit.Emit(ctx, s.deps.Audit, e, s.deps.Now())
}

func roleNames(rs []repository.Role) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Name)
	}
	return out
}
