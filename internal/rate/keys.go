package rate

import (
	"net"
	"net/http"
	"strings"
)

const (
	ClassAuth    = "auth"
	ClassDefault = "default"
)

// Policy resuelve clase y límite de un request.
type Policy struct {
	AuthLimit      int
	DefaultLimit   int
	AuthPrefixes   []string
	BypassPrefixes []string
	// TrustForwarded usa el primer hop de X-Forwarded-For como IP del cliente.
	TrustForwarded bool
}

func DefaultPolicy() Policy {
	return Policy{
		AuthLimit:      5,
		DefaultLimit:   60,
		AuthPrefixes:   []string{"/v1/auth/"},
		BypassPrefixes: []string{"/static/", "/public/"},
		TrustForwarded: true,
	}
}

// Classify retorna la clase de endpoint de path.
func (p Policy) Classify(path string) string {
	for _, pre := range p.AuthPrefixes {
		if pre != "" && strings.HasPrefix(path, pre) {
			return ClassAuth
		}
	}
	return ClassDefault
}

// LimitFor retorna el límite por minuto (o por ventana) de class.
func (p Policy) LimitFor(class string) int {
	if class == ClassAuth {
		return p.AuthLimit
	}
	return p.DefaultLimit
}

// Bypass: preflight y paths estáticos no consumen cupo.
func (p Policy) Bypass(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	for _, pre := range p.BypassPrefixes {
		if pre != "" && strings.HasPrefix(r.URL.Path, pre) {
			return true
		}
	}
	return false
}

// ClientIP extrae la IP del cliente, considerando proxies.
func (p Policy) ClientIP(r *http.Request) string {
	if p.TrustForwarded {
		if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
			first, _, _ := strings.Cut(xf, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// Key arma la clave <ip>|<class>.
func Key(ip, class string) string { return ip + "|" + class }
