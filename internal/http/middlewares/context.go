package middlewares

import (
	"context"

	jwtx "github.com/dropDatabas3/accesscore/internal/jwt"
)

type ctxKey string

const (
	ctxClaimsKey    ctxKey = "claims"
	ctxTokenKey     ctxKey = "access_token"
	ctxRequestIDKey ctxKey = "request_id"
	ctxClientIPKey  ctxKey = "client_ip"
)

// WithClaims inyecta las claims validadas y el token crudo.
func WithClaims(ctx context.Context, c *jwtx.Claims, raw string) context.Context {
	ctx = context.WithValue(ctx, ctxClaimsKey, c)
	return context.WithValue(ctx, ctxTokenKey, raw)
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

func setClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxClientIPKey, ip)
}

// GetClaims retorna nil si RequireAuth no corrió.
func GetClaims(ctx context.Context) *jwtx.Claims {
	c, _ := ctx.Value(ctxClaimsKey).(*jwtx.Claims)
	return c
}

// GetAccessToken retorna el bearer token validado por RequireAuth.
func GetAccessToken(ctx context.Context) string {
	s, _ := ctx.Value(ctxTokenKey).(string)
	return s
}

func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRequestIDKey).(string)
	return s
}

// GetClientIP retorna la IP resuelta por WithRateLimit/WithClientIP.
func GetClientIP(ctx context.Context) string {
	s, _ := ctx.Value(ctxClientIPKey).(string)
	return s
}

// GetUserID retorna el uid de las claims o "".
func GetUserID(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.UserID
	}
	return ""
}
