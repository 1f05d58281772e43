// Package handlers expone las operaciones de sesión y RBAC como JSON sobre HTTP.
package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/dropDatabas3/accesscore/internal/audit"
	"github.com/dropDatabas3/accesscore/internal/auth"
	"github.com/dropDatabas3/accesscore/internal/http/middlewares"
)

// TenantHeader permite indicar el tenant en requests sin token.
const TenantHeader = "X-Tenant-ID"

func clientIP(r *http.Request) string {
	if ip := middlewares.GetClientIP(r.Context()); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// metaFrom arma la metadata de auditoría. El tenant de las claims gana
// sobre el del body y este sobre el header.
func metaFrom(r *http.Request, bodyTenant string) auth.Meta {
	tenant := strings.TrimSpace(r.Header.Get(TenantHeader))
	if t := strings.TrimSpace(bodyTenant); t != "" {
		tenant = t
	}
	if cl := middlewares.GetClaims(r.Context()); cl != nil && cl.TenantID != "" {
		tenant = cl.TenantID
	}
	return auth.Meta{IP: clientIP(r), UserAgent: r.UserAgent(), TenantID: tenant}
}

// actorFrom identifica al caller autenticado para la auditoría.
func actorFrom(r *http.Request) audit.Actor {
	m := metaFrom(r, "")
	a := audit.Actor{IP: m.IP, UserAgent: m.UserAgent, TenantID: m.TenantID}
	if cl := middlewares.GetClaims(r.Context()); cl != nil {
		a.ID = cl.UserID
		a.Username = cl.Username()
		a.Roles = cl.Roles
	}
	return a
}
