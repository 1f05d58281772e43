package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/dropDatabas3/accesscore/internal/http/errors"
	"github.com/dropDatabas3/accesscore/internal/http/middlewares"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
	"github.com/dropDatabas3/accesscore/internal/rbac"
)

// RBACController maneja /v1/rbac/*. Requiere RequireAuth delante.
type RBACController struct {
	service rbac.Service
}

func NewRBACController(service rbac.Service) *RBACController {
	return &RBACController{service: service}
}

// AssignRole maneja POST /v1/rbac/users/{userID}/roles.
func (c *RBACController) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req AssignRoleRequest
	if appErr := httperrors.ReadJSON(w, r, &req); appErr != nil {
		httperrors.WriteError(w, appErr)
		return
	}
	if strings.TrimSpace(req.RoleID) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("role_id is required"))
		return
	}
	assigned, err := c.service.AssignRole(r.Context(), userID, req.RoleID, actorFrom(r))
	if err != nil {
		c.writeError(w, r, "RBACController.AssignRole", err)
		return
	}
	status := http.StatusOK
	if assigned {
		status = http.StatusCreated
	}
	httperrors.WriteJSON(w, status, ChangeResponse{Changed: assigned})
}

// RemoveRole maneja DELETE /v1/rbac/users/{userID}/roles/{roleID}.
func (c *RBACController) RemoveRole(w http.ResponseWriter, r *http.Request) {
	removed, err := c.service.RemoveRole(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "roleID"), actorFrom(r))
	if err != nil {
		c.writeError(w, r, "RBACController.RemoveRole", err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, ChangeResponse{Changed: removed})
}

// AddPermission maneja PUT /v1/rbac/roles/{roleID}/permissions/{permissionID}.
func (c *RBACController) AddPermission(w http.ResponseWriter, r *http.Request) {
	added, err := c.service.AddPermissionToRole(r.Context(), chi.URLParam(r, "roleID"), chi.URLParam(r, "permissionID"), actorFrom(r))
	if err != nil {
		c.writeError(w, r, "RBACController.AddPermission", err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, ChangeResponse{Changed: added})
}

// RemovePermission maneja DELETE /v1/rbac/roles/{roleID}/permissions/{permissionID}.
func (c *RBACController) RemovePermission(w http.ResponseWriter, r *http.Request) {
	removed, err := c.service.RemovePermissionFromRole(r.Context(), chi.URLParam(r, "roleID"), chi.URLParam(r, "permissionID"))
	if err != nil {
		c.writeError(w, r, "RBACController.RemovePermission", err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, ChangeResponse{Changed: removed})
}

// ListRoles maneja GET /v1/rbac/roles: los del tenant del token más los globales.
func (c *RBACController) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := c.service.FindAllRolesByTenant(r.Context(), tenantOf(r))
	if err != nil {
		c.writeError(w, r, "RBACController.ListRoles", err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, roleResponses(roles))
}

// ListPermissions maneja GET /v1/rbac/permissions.
func (c *RBACController) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := c.service.FindAllPermissionsByTenant(r.Context(), tenantOf(r))
	if err != nil {
		c.writeError(w, r, "RBACController.ListPermissions", err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, permissionResponses(perms))
}

func tenantOf(r *http.Request) string {
	if cl := middlewares.GetClaims(r.Context()); cl != nil {
		return cl.TenantID
	}
	return ""
}

func (c *RBACController) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	appErr := httperrors.FromDomain(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.From(r.Context()).Error("request failed",
			logger.Layer("controller"), logger.Op(op), logger.Err(err))
	}
	httperrors.WriteError(w, appErr)
}
