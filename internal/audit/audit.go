// Package audit define los eventos de auditoría y sus destinos.
//
// Emitir un evento nunca debe tumbar la operación que lo origina: los callers
// loguean el error de Record y siguen.
package audit

import (
	"context"
	"errors"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/dropDatabas3/accesscore/internal/domain/repository"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
	"github.com/dropDatabas3/accesscore/internal/observability/metrics"
)

// Acciones emitidas por el core.
const (
	ActionLogin        = "login"
	ActionLoginFailed  = "login_failed"
	ActionRegister     = "register"
	ActionLogout       = "logout"
	ActionAssignRole   = "assign_role"
	ActionRemoveRole   = "remove_role"
	ActionTokenRefresh = "token_refresh"
	ActionTokenRevoked = "token_revoked"
)

// Event es un evento de auditoría. Details nunca lleva secretos.
type Event struct {
	ID            string
	Action        string
	Details       string
	ActorID       string
	ActorUsername string
	IPAddress     string
	UserAgent     string
	TenantID      string
	EntityType    string
	EntityID      string
	OccurredAt    time.Time
}

// Recorder persiste o publica eventos.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// RecorderFunc adapta una función a Recorder.
type RecorderFunc func(ctx context.Context, e Event) error

func (f RecorderFunc) Record(ctx context.Context, e Event) error { return f(ctx, e) }

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewID retorna un ULID con el timestamp de t; ordenable por tiempo.
func NewID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Stamp completa OccurredAt e ID si faltan.
func Stamp(e Event, now time.Time) Event {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now
	}
	if e.ID == "" {
		e.ID = NewID(e.OccurredAt)
	}
	return e
}

// LogRecorder escribe el evento en el logger estructurado.
type LogRecorder struct {
	log *zap.Logger
}

func NewLogRecorder(l *zap.Logger) *LogRecorder {
	if l == nil {
		l = logger.L()
	}
	return &LogRecorder{log: l.Named("audit")}
}

func (r *LogRecorder) Record(_ context.Context, e Event) error {
	r.log.Info("audit",
		zap.String("audit_id", e.ID),
		logger.Action(e.Action),
		zap.String("details", e.Details),
		logger.UserID(e.ActorID),
		logger.Username(e.ActorUsername),
		logger.ClientIP(e.IPAddress),
		logger.UserAgent(e.UserAgent),
		logger.TenantID(e.TenantID),
		zap.String("entity_type", e.EntityType),
		zap.String("entity_id", e.EntityID),
		zap.Time("occurred_at", e.OccurredAt),
	)
	return nil
}

// RepositoryRecorder persiste en la tabla de auditoría.
type RepositoryRecorder struct {
	repo repository.AuditRepository
}

func NewRepositoryRecorder(repo repository.AuditRepository) *RepositoryRecorder {
	return &RepositoryRecorder{repo: repo}
}

func (r *RepositoryRecorder) Record(ctx context.Context, e Event) error {
	return r.repo.Insert(ctx, repository.AuditEntry{
		ID:            e.ID,
		Action:        e.Action,
		Details:       e.Details,
		ActorID:       e.ActorID,
		ActorUsername: e.ActorUsername,
		IPAddress:     e.IPAddress,
		UserAgent:     e.UserAgent,
		TenantID:      e.TenantID,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		OccurredAt:    e.OccurredAt,
	})
}

// Multi reparte el evento a todos los recorders y junta los errores.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop descarta los eventos.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// Actor identifica quién origina una operación y desde dónde.
type Actor struct {
	ID        string
	Username  string
	IP        string
	UserAgent string
	TenantID  string
	// Roles del token; no se persisten en el evento.
	Roles []string
}

// HasRole compara sin distinguir mayúsculas.
func (a Actor) HasRole(name string) bool {
	for _, r := range a.Roles {
		if strings.EqualFold(strings.TrimSpace(r), name) {
			return true
		}
	}
	return false
}

// Event arma un evento de action con los datos del actor.
func (a Actor) Event(action string) Event {
	return Event{
		Action:        action,
		ActorID:       a.ID,
		ActorUsername: a.Username,
		IPAddress:     a.IP,
		UserAgent:     a.UserAgent,
		TenantID:      a.TenantID,
	}
}

// Emit sella y registra e. Un error se loguea y se descarta: la auditoría
// no puede tumbar la operación que la origina.
func Emit(ctx context.Context, r Recorder, e Event, now time.Time) {
	if r == nil {
		return
	}
	e = Stamp(e, now)
	if err := r.Record(ctx, e); err != nil {
		logger.From(ctx).Warn("audit event not recorded",
			logger.Component("audit"), logger.Action(e.Action), logger.Err(err))
		metrics.RecordAuditDropped()
	}
}
