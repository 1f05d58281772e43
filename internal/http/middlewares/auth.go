package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/dropDatabas3/accesscore/internal/http/errors"
	jwtx "github.com/dropDatabas3/accesscore/internal/jwt"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
)

// Authenticator valida un access token (firma, expiración y revocación).
type Authenticator func(ctx context.Context, accessToken string) (*jwtx.Claims, error)

// BearerToken extrae el token de "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(ah) < len("bearer ") || !strings.EqualFold(ah[:len("bearer ")], "bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(ah[len("bearer "):])
	return raw, raw != ""
}

// RequireAuth exige un bearer token válido y no revocado; guarda las claims
// y el token en el contexto.
func RequireAuth(authenticate Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				errors.WriteError(w, errors.ErrTokenMissing)
				return
			}
			claims, err := authenticate(r.Context(), raw)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				errors.WriteError(w, errors.FromDomain(err))
				return
			}
			ctx := WithClaims(r.Context(), claims, raw)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(
				logger.UserID(claims.UserID),
				logger.TenantID(claims.TenantID),
			))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
