package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/accesscore/internal/observability/logger"
	"github.com/dropDatabas3/accesscore/internal/store/memory"
)

func TestStamp(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	e := Stamp(Event{Action: ActionLogin}, now)
	assert.Equal(t, now, e.OccurredAt)

	id, err := ulid.Parse(e.ID)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(now), id.Time())

	again := Stamp(e, now.Add(time.Hour))
	assert.Equal(t, e, again)
}

func TestNewID_Monotonic(t *testing.T) {
	now := time.Now()
	a, b := NewID(now), NewID(now)
	assert.Less(t, a, b)
}

func TestLogRecorder(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := NewLogRecorder(zap.New(core))

	require.NoError(t, r.Record(context.Background(), Event{
		ID: "01HX", Action: ActionLoginFailed, Details: "reason=bad_password", ActorUsername: "alice",
	}))
	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "login_failed", ctx["action"])
	assert.Equal(t, "alice", ctx["username"])
	assert.Equal(t, "reason=bad_password", ctx["details"])
}

func TestRepositoryRecorder(t *testing.T) {
	mem := memory.New()
	r := NewRepositoryRecorder(mem.Audit())
	e := Stamp(Event{Action: ActionRegister, ActorID: "u1", TenantID: "t1"}, time.Now())
	require.NoError(t, r.Record(context.Background(), e))

	got := mem.AuditEntries()
	require.Len(t, got, 1)
	assert.Equal(t, e.ID, got[0].ID)
	assert.Equal(t, "register", got[0].Action)
	assert.Equal(t, "t1", got[0].TenantID)
}

func TestMulti_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	var seen int
	m := Multi{
		RecorderFunc(func(context.Context, Event) error { seen++; return boom }),
		nil,
		RecorderFunc(func(context.Context, Event) error { seen++; return nil }),
	}
	err := m.Record(context.Background(), Event{Action: ActionLogout})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, seen)

	assert.NoError(t, Multi{Nop{}}.Record(context.Background(), Event{}))
}

func TestEmit_FailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	var got Event
	Emit(context.Background(), RecorderFunc(func(_ context.Context, e Event) error {
		got = e
		return errors.New("sink down")
	}), Actor{Username: "alice", IP: "10.0.0.1"}.Event(ActionLogout), time.Now())

	assert.Equal(t, "alice", got.ActorUsername)
	assert.NotEmpty(t, got.ID)
	require.Equal(t, 1, logs.FilterMessage("audit event not recorded").Len())
}
