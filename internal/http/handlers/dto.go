package handlers

import (
	"time"

	"github.com/dropDatabas3/accesscore/internal/auth"
	"github.com/dropDatabas3/accesscore/internal/domain/repository"
)

// ─── Auth ───

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TenantID string `json:"tenant_id,omitempty"`
}

type RegisterRequest struct {
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Phone     *string  `json:"phone,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	TenantID  string   `json:"tenant_id,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	TenantID     string `json:"tenant_id,omitempty"`
}

// TokenResponse es la respuesta de login y refresh.
type TokenResponse struct {
	AccessToken      string   `json:"access_token"`
	TokenType        string   `json:"token_type"`
	ExpiresIn        int64    `json:"expires_in"` // segundos
	RefreshToken     string   `json:"refresh_token"`
	RefreshExpiresIn int64    `json:"refresh_expires_in"`
	UserID           string   `json:"user_id"`
	Username         string   `json:"username,omitempty"`
	Email            string   `json:"email,omitempty"`
	TenantID         string   `json:"tenant_id,omitempty"`
	Roles            []string `json:"roles,omitempty"`
	Rotated          *bool    `json:"rotated,omitempty"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Phone     *string   `json:"phone,omitempty"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

func tokenResponse(p auth.TokenPair, now time.Time) TokenResponse {
	return TokenResponse{
		AccessToken:      p.AccessToken,
		TokenType:        p.TokenType,
		ExpiresIn:        secondsUntil(now, p.AccessExpiresAt),
		RefreshToken:     p.RefreshToken,
		RefreshExpiresIn: secondsUntil(now, p.RefreshExpiresAt),
	}
}

func secondsUntil(now, t time.Time) int64 {
	if !t.After(now) {
		return 0
	}
	return int64(t.Sub(now).Seconds())
}

func userResponse(u *repository.User, roles []string) UserResponse {
	if roles == nil {
		roles = []string{}
	}
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		Phone:     u.Phone,
		TenantID:  u.TenantID,
		Roles:     roles,
		CreatedAt: u.CreatedAt,
	}
}

// ─── RBAC ───

type AssignRoleRequest struct {
	RoleID string `json:"role_id"`
}

type RoleResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TenantID    string `json:"tenant_id,omitempty"`
	Predefined  bool   `json:"predefined"`
}

type PermissionResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TenantID    string `json:"tenant_id,omitempty"`
	Predefined  bool   `json:"predefined"`
}

// ChangeResponse indica si la operación cambió estado (false = ya estaba).
type ChangeResponse struct {
	Changed bool `json:"changed"`
}

func roleResponses(rs []repository.Role) []RoleResponse {
	out := make([]RoleResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, RoleResponse{
			ID: r.ID, Name: r.Name, Description: r.Description,
			TenantID: r.TenantID, Predefined: r.Predefined,
		})
	}
	return out
}

func permissionResponses(ps []repository.Permission) []PermissionResponse {
	out := make([]PermissionResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, PermissionResponse{
			ID: p.ID, Name: p.Name, Description: p.Description,
			TenantID: p.TenantID, Predefined: p.Predefined,
		})
	}
	return out
}
