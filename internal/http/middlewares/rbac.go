package middlewares

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/accesscore/internal/http/errors"
)

func hasAny(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, v := range have {
		set[strings.ToUpper(strings.TrimSpace(v))] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[strings.ToUpper(strings.TrimSpace(w))]; ok {
			return true
		}
	}
	return false
}

// RequireRole exige al menos uno de roles en las claims. Va después de RequireAuth.
func RequireRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cl := GetClaims(r.Context())
			if cl == nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				errors.WriteError(w, errors.ErrTokenMissing)
				return
			}
			if !hasAny(cl.Roles, roles) {
				errors.WriteError(w, errors.ErrForbidden.WithDetail("insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
