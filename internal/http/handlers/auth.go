package handlers

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/accesscore/internal/auth"
	httperrors "github.com/dropDatabas3/accesscore/internal/http/errors"
	"github.com/dropDatabas3/accesscore/internal/http/middlewares"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
)

// AuthController maneja /v1/auth/*.
type AuthController struct {
	service auth.Service
	now     func() time.Time
}

func NewAuthController(service auth.Service, now func() time.Time) *AuthController {
	if now == nil {
		now = time.Now
	}
	return &AuthController{service: service, now: now}
}

func (c *AuthController) log(r *http.Request, op string) *zap.Logger {
	return logger.From(r.Context()).With(logger.Layer("controller"), logger.Op(op))
}

// Login maneja POST /v1/auth/login.
func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if appErr := httperrors.ReadJSON(w, r, &req); appErr != nil {
		httperrors.WriteError(w, appErr)
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("username and password are required"))
		return
	}

	res, err := c.service.Login(r.Context(), auth.LoginInput{Username: req.Username, Password: req.Password}, metaFrom(r, req.TenantID))
	if err != nil {
		c.writeError(w, r, "AuthController.Login", err)
		return
	}

	resp := tokenResponse(res.TokenPair, c.now())
	resp.UserID = res.UserID
	resp.Username = res.Username
	resp.Email = res.Email
	resp.TenantID = res.TenantID
	resp.Roles = res.Roles
	w.Header().Set("Cache-Control", "no-store")
	httperrors.WriteJSON(w, http.StatusOK, resp)
}

// Register maneja POST /v1/auth/register.
func (c *AuthController) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if appErr := httperrors.ReadJSON(w, r, &req); appErr != nil {
		httperrors.WriteError(w, appErr)
		return
	}

	meta := metaFrom(r, req.TenantID)
	res, err := c.service.Register(r.Context(), auth.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Roles:     req.Roles,
		TenantID:  meta.TenantID,
	}, meta)
	if err != nil {
		c.writeError(w, r, "AuthController.Register", err)
		return
	}
	httperrors.WriteJSON(w, http.StatusCreated, userResponse(res.User, res.Roles))
}

// Refresh maneja POST /v1/auth/refresh.
func (c *AuthController) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if appErr := httperrors.ReadJSON(w, r, &req); appErr != nil {
		httperrors.WriteError(w, appErr)
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("refresh_token is required"))
		return
	}

	res, err := c.service.Refresh(r.Context(), req.RefreshToken, metaFrom(r, req.TenantID))
	if err != nil {
		c.writeError(w, r, "AuthController.Refresh", err)
		return
	}
	resp := tokenResponse(res.TokenPair, c.now())
	resp.UserID = res.UserID
	rotated := res.Rotated
	resp.Rotated = &rotated
	w.Header().Set("Cache-Control", "no-store")
	httperrors.WriteJSON(w, http.StatusOK, resp)
}

// Logout maneja POST /v1/auth/logout (bearer). Borra el refresh token del
// principal y revoca el access token presentado.
func (c *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	claims := middlewares.GetClaims(r.Context())
	if claims == nil {
		httperrors.WriteError(w, httperrors.ErrTokenMissing)
		return
	}
	err := c.service.Logout(r.Context(), auth.LogoutInput{
		UserID:      claims.UserID,
		AccessToken: middlewares.GetAccessToken(r.Context()),
	}, metaFrom(r, ""))
	if err != nil {
		c.writeError(w, r, "AuthController.Logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *AuthController) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	appErr := httperrors.FromDomain(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		c.log(r, op).Error("request failed", logger.Err(err))
	}
	httperrors.WriteError(w, appErr)
}
