package logger

import (
	"time"

	"go.uber.org/zap"
)

// ─── HTTP ───

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field { return zap.String("user_agent", v) }

// DurationMs registra la duración en milisegundos.
func DurationMs(d time.Duration) zap.Field {
	return zap.Int64("duration_ms", d.Milliseconds())
}

// ─── Negocio ───

func TenantID(v string) zap.Field      { return zap.String("tenant_id", v) }
func UserID(v string) zap.Field        { return zap.String("user_id", v) }
func Username(v string) zap.Field      { return zap.String("username", v) }
func RoleID(v string) zap.Field        { return zap.String("role_id", v) }
func PermissionID(v string) zap.Field  { return zap.String("permission_id", v) }
func EndpointClass(v string) zap.Field { return zap.String("endpoint_class", v) }
func Action(v string) zap.Field        { return zap.String("action", v) }
func Reason(v string) zap.Field        { return zap.String("reason", v) }
func Attempts(v int) zap.Field         { return zap.Int("attempts", v) }

// ─── Sistema ───

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Count(v int) zap.Field        { return zap.Int("count", v) }
func Until(t time.Time) zap.Field  { return zap.Time("until", t) }

// Err agrega el error (nil-safe).
func Err(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.Error(err)
}

// ─── Genéricos ───

func String(k, v string) zap.Field   { return zap.String(k, v) }
func Int(k string, v int) zap.Field   { return zap.Int(k, v) }
func Bool(k string, v bool) zap.Field { return zap.Bool(k, v) }
func Any(k string, v any) zap.Field   { return zap.Any(k, v) }
