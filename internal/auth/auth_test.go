package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/accesscore/internal/audit"
	"github.com/dropDatabas3/accesscore/internal/domain/autherr"
	"github.com/dropDatabas3/accesscore/internal/domain/repository"
	jwtx "github.com/dropDatabas3/accesscore/internal/jwt"
	"github.com/dropDatabas3/accesscore/internal/lockout"
	"github.com/dropDatabas3/accesscore/internal/notify"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
	"github.com/dropDatabas3/accesscore/internal/rbac"
	"github.com/dropDatabas3/accesscore/internal/refresh"
	"github.com/dropDatabas3/accesscore/internal/revocation"
	"github.com/dropDatabas3/accesscore/internal/security/password"
	"github.com/dropDatabas3/accesscore/internal/store/memory"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef-test"
	alicePwd   = "Tr1cky!Horse-Battery"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (r *recorder) Record(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) byAction(action string) []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Event
	for _, e := range r.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []notify.LockoutNotice
}

func (f *fakeNotifier) NotifyLocked(_ context.Context, n notify.LockoutNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, n)
	return nil
}

type fixture struct {
	svc      Service
	mem      *memory.Store
	clk      *fakeClock
	rec      *recorder
	notifier *fakeNotifier
	guard    *lockout.Guard
	rbac     rbac.Service
}

func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		mem:      memory.New(),
		clk:      &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		rec:      &recorder{},
		notifier: &fakeNotifier{},
	}
	codec, err := jwtx.NewCodec(testSecret, 15*time.Minute, jwtx.WithClock(f.clk.Now), jwtx.WithIssuer("accesscore-test"))
	require.NoError(t, err)
	rs, err := refresh.NewStore(f.mem.RefreshTokens(), time.Hour, refresh.WithClock(f.clk.Now))
	require.NoError(t, err)
	f.guard = lockout.New(lockout.NewMemoryStore(), lockout.DefaultConfig(), lockout.WithClock(f.clk.Now))
	f.rbac = rbac.NewService(rbac.Deps{
		Roles:       f.mem.Roles(),
		Permissions: f.mem.Permissions(),
		Assignments: f.mem.Assignments(),
		Users:       f.mem.Users(),
		Audit:       f.rec,
		Now:         f.clk.Now,
	})
	_, err = f.rbac.EnsureRoles(context.Background(), rbac.PredefinedRoles...)
	require.NoError(t, err)

	deps := Deps{
		Users:         f.mem.Users(),
		RBAC:          f.rbac,
		Codec:         codec,
		Refresh:       rs,
		Revocations:   revocation.New(f.mem.RevokedTokens(), revocation.WithClock(f.clk.Now)),
		Lockout:       f.guard,
		Audit:         f.rec,
		Notifier:      f.notifier,
		Policy:        password.DefaultPolicy(),
		Hash:          password.Fast,
		RotateRefresh: true,
		Now:           f.clk.Now,
	}
	for _, m := range mutate {
		m(&deps)
	}
	f.svc = NewService(deps)
	return f
}

func (f *fixture) register(t *testing.T, username string) *RegisterResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: alicePwd,
	}, Meta{IP: "10.0.0.1", TenantID: "t1"})
	require.NoError(t, err)
	return res
}

var meta = Meta{IP: "203.0.113.7", UserAgent: "test-agent/1.0", TenantID: "t1"}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	phone := " +1 555 0100 "
	res, err := f.svc.Register(context.Background(), RegisterInput{
		Username:  " alice ",
		Email:     "Alice@Example.com",
		Password:  alicePwd,
		FirstName: "Alice",
		LastName:  "Liddell",
		Phone:     &phone,
	}, meta)
	require.NoError(t, err)

	u := res.User
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "Alice Liddell", u.FullName)
	require.NotNil(t, u.Phone)
	assert.Equal(t, "+1 555 0100", *u.Phone)
	assert.Equal(t, "t1", u.TenantID)
	assert.True(t, u.Enabled)
	assert.NotContains(t, u.PasswordHash, alicePwd)
	assert.True(t, password.Verify(alicePwd, u.PasswordHash))
	assert.Equal(t, []string{rbac.RoleUser}, res.Roles)

	roles, err := f.rbac.UserRoles(context.Background(), u.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, rbac.RoleUser, roles[0].Name)

	events := f.rec.byAction(audit.ActionRegister)
	require.Len(t, events, 1)
	assert.Equal(t, u.ID, events[0].ActorID)
	assert.Equal(t, "203.0.113.7", events[0].IPAddress)
}

func TestRegister_DisplayNameFallsBackToUsername(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "bob")
	assert.Equal(t, "bob", res.User.FullName)
	assert.Nil(t, res.User.Phone)
}

func TestRegister_Errors(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "new@example.com", Password: alicePwd}, meta)
	assert.ErrorIs(t, err, autherr.ErrDuplicateUsername)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "alice2", Email: "alice@example.com", Password: alicePwd}, meta)
	assert.ErrorIs(t, err, autherr.ErrDuplicateEmail)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "carol", Email: "carol@example.com", Password: alicePwd, Roles: []string{"WIZARD"}}, meta)
	assert.ErrorIs(t, err, autherr.ErrRoleNotFound)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "dave", Email: "dave@example.com", Password: "short"}, meta)
	var weak *autherr.WeakPasswordError
	require.ErrorAs(t, err, &weak)
	assert.Contains(t, weak.Reasons, "too_short")

	_, err = f.svc.Register(ctx, RegisterInput{Username: "", Email: "x@example.com", Password: alicePwd}, meta)
	assert.ErrorIs(t, err, autherr.ErrInvalidInput)
	_, err = f.svc.Register(ctx, RegisterInput{Username: "erin", Email: "not-an-email", Password: alicePwd}, meta)
	assert.ErrorIs(t, err, autherr.ErrInvalidInput)

	assert.Len(t, f.rec.byAction(audit.ActionRegister), 1)
}

func TestRegister_NamedRoles(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Register(context.Background(), RegisterInput{
		Username: "root", Email: "root@example.com", Password: alicePwd,
		Roles: []string{rbac.RoleAdmin, rbac.RoleUser, rbac.RoleAdmin},
	}, meta)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{rbac.RoleAdmin, rbac.RoleUser}, res.Roles)
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "alice")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, LoginInput{Username: "alice", Password: "wrong"}, meta)
		require.ErrorIs(t, err, autherr.ErrInvalidCredentials)
	}

	res, err := f.svc.Login(ctx, LoginInput{Username: "alice", Password: alicePwd}, meta)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, res.UserID)
	assert.Equal(t, []string{rbac.RoleUser}, res.Roles)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.WithinDuration(t, f.clk.Now().Add(15*time.Minute), res.AccessExpiresAt, 0)
	assert.WithinDuration(t, f.clk.Now().Add(time.Hour), res.RefreshExpiresAt, 0)

	n, err := f.guard.Failures(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, n, "success resets lockout")

	claims, err := f.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username())
	assert.Equal(t, []string{rbac.RoleUser}, claims.Roles)

	logins := f.rec.byAction(audit.ActionLogin)
	require.Len(t, logins, 1)
	assert.Equal(t, "test-agent/1.0", logins[0].UserAgent)
}

func TestLogin_LockoutAfterFiveFailures(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	ctx := context.Background()

	for i := 0; i < lockout.DefaultMaxAttempts; i++ {
		_, err := f.svc.Login(ctx, LoginInput{Username: "alice", Password: "nope-" + alicePwd}, meta)
		require.ErrorIs(t, err, autherr.ErrInvalidCredentials)
		assert.NotErrorIs(t, err, autherr.ErrAccountLocked)
	}

	// la sexta, aun con el password correcto, queda bloqueada
	_, err := f.svc.Login(ctx, LoginInput{Username: "alice", Password: alicePwd}, meta)
	require.ErrorIs(t, err, autherr.ErrAccountLocked)
	mins, ok := autherr.LockedMinutes(err)
	require.True(t, ok)
	assert.Equal(t, 15, mins)

	require.Len(t, f.notifier.notices, 1)
	assert.Equal(t, "alice@example.com", f.notifier.notices[0].Email)
	assert.Equal(t, 15, f.notifier.notices[0].Minutes)

	failed := f.rec.byAction(audit.ActionLoginFailed)
	require.Len(t, failed, 6)
	for _, e := range failed {
		assert.NotContains(t, e.Details, alicePwd)
		assert.NotContains(t, e.Details, "nope-")
	}
	assert.Equal(t, "reason=bad_password attempts=1", failed[0].Details)
	assert.Equal(t, "reason=account_locked", failed[5].Details)

	f.clk.Advance(14*time.Minute + 30*time.Second)
	_, err = f.svc.Login(ctx, LoginInput{Username: "alice", Password: alicePwd}, meta)
	mins, _ = autherr.LockedMinutes(err)
	assert.Equal(t, 1, mins)

	f.clk.Advance(30 * time.Second)
	_, err = f.svc.Login(ctx, LoginInput{Username: "alice", Password: alicePwd}, meta)
	require.NoError(t, err)
}

func TestLogin_ConcurrentFailuresReachThreshold(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < lockout.DefaultMaxAttempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Login(ctx, LoginInput{Username: "alice", Password: "bad"}, meta)
		}()
	}
	wg.Wait()

	locked, err := f.guard.IsLocked(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Len(t, f.notifier.notices, 1)
}

func TestLogin_GenericFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hash, err := password.Hash(password.Fast, alicePwd)
	require.NoError(t, err)
	require.NoError(t, f.mem.Users().Create(ctx, &repository.User{
		Username: "frozen", Email: "frozen@example.com", TenantID: "t1", PasswordHash: hash, Enabled: false,
	}, nil))
	f.register(t, "alice")

	cases := []struct {
		name, user, pwd string
		meta            Meta
		reason          string
	}{
		{"unknown user", "ghost", alicePwd, meta, "user_not_found"},
		{"disabled", "frozen", alicePwd, meta, "user_disabled"},
		{"other tenant", "alice", alicePwd, Meta{TenantID: "t2"}, "tenant_mismatch"},
		{"empty password", "alice", "", meta, "missing_fields"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Login(ctx, LoginInput{Username: tc.user, Password: tc.pwd}, tc.meta)
			assert.ErrorIs(t, err, autherr.ErrInvalidCredentials)
			assert.NotErrorIs(t, err, autherr.ErrAccountLocked)

			failed := f.rec.byAction(audit.ActionLoginFailed)
			require.NotEmpty(t, failed)
			assert.True(t, strings.HasPrefix(failed[len(failed)-1].Details, "reason="+tc.reason))
		})
	}

	n, err := f.guard.Failures(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "unknown usernames accumulate too")
}

func TestLogin_AuditFailureIsNotFatal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	f := newFixture(t)
	f.register(t, "alice")
	f.rec.err = errors.New("audit store unavailable")

	res, err := f.svc.Login(context.Background(), LoginInput{Username: "alice", Password: alicePwd}, meta)
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)

	_, err = f.svc.Login(context.Background(), LoginInput{Username: "alice", Password: "bad"}, meta)
	assert.ErrorIs(t, err, autherr.ErrInvalidCredentials)

	assert.GreaterOrEqual(t, logs.FilterMessage("audit event not recorded").Len(), 2)
}

func TestRefresh_Rotation(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	ctx := context.Background()
	login, err := f.svc.Login(ctx, LoginInput{Username: "alice", Password: alicePwd}, meta)
	require.NoError(t, err)

	f.clk.Advance(time.Minute)
	res, err := f.svc.Refresh(ctx, login.RefreshToken, meta)
	require.NoError(t, err)
	assert.True(t, res.Rotated)
	assert.NotEqual(t, login.RefreshToken, res.RefreshToken)
	assert.NotEqual(t, login.AccessToken, res.AccessToken)

	_, err = f.svc.Refresh(ctx, login.RefreshToken, meta)
	assert.ErrorIs(t, err, autherr.ErrRefreshTokenNotFound)

	claims, err := f.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, login.UserID, claims.UserID)
	assert.Len(t, f.rec.byAction(audit.ActionTokenRefresh), 1)
}

// blankNameUsers devuelve usuarios sin username, lo que impide firmar el access token.
type blankNameUsers struct {
	repository.UserRepository
	on bool
}

func (b *blankNameUsers) GetByID(ctx context.Context, id string) (*repository.User, error) {
	u, err := b.UserRepository.GetByID(ctx, id)
	if err == nil && b.on {
		cp := *u
		cp.Username = ""
		u = &cp
	}
	return u, err
}

func TestRefresh_IssueFailureKeepsSession(t *testing.T) {
	users := &blankNameUsers{}
	f := newFixture(t, func(d *Deps) {
		users.UserRepository = d.Users
		d.Users = users
	})
	f.register(t, "alice")
	ctx := context.Background()
	login, err := f.svc.Login(ctx, LoginInput{Username: "alice", Password: alicePwd}, meta)
	require.NoError(t, err)

	users.on = true
	_, err = f.svc.Refresh(ctx, login.RefreshToken, meta)
	require.Error(t, err)
	assert.Empty(t, f.rec.byAction(audit.ActionTokenRefresh))

	users.on = false
	res, err := f.svc.Refresh(ctx, login.RefreshToken, meta)
	require.NoError(t, err)
	assert.True(t, res.Rotated)
	assert.NotEmpty(t, res.AccessToken)
}

func TestRefresh_SameTokenWithoutRotation(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.RotateRefresh = false })
	f.register(t, "alice")
	ctx := context.Background()
	login, err := f.svc.Login(ctx, LoginInput{Username: "alice", Password: alicePwd}, meta)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := f.svc.Refresh(ctx, login.RefreshToken, meta)
		require.NoError(t, err)
		assert.False(t, res.Rotated)
		assert.Equal(t, login.RefreshToken, res.RefreshToken)
		assert.WithinDuration(t, login.RefreshExpiresAt, res.RefreshExpiresAt, 0)
	}
}

func TestRefresh_NotFoundVsExpired(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	ctx := context.Background()

	_, err := f.svc.Refresh(ctx, "never-issued", meta)
	assert.ErrorIs(t, err, autherr.ErrRefreshTokenNotFound)

	login, err := f.svc.Login(ctx, LoginInput{Username: "alice", Password: alicePwd}, meta)
	require.NoError(t, err)
	f.clk.Advance(time.Hour)

	_, err = f.svc.Refresh(ctx, login.RefreshToken, meta)
	assert.ErrorIs(t, err, autherr.ErrRefreshTokenExpired)
	assert.NotErrorIs(t, err, autherr.ErrRefreshTokenNotFound)

	_, err = f.svc.Refresh(ctx, login.RefreshToken, meta)
	assert.ErrorIs(t, err, autherr.ErrRefreshTokenNotFound)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	ctx := context.Background()
	login, err := f.svc.Login(ctx, LoginInput{Username: "alice", Password: alicePwd}, meta)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, LogoutInput{UserID: login.UserID, AccessToken: login.AccessToken}, meta))

	_, err = f.svc.Refresh(ctx, login.RefreshToken, meta)
	assert.ErrorIs(t, err, autherr.ErrRefreshTokenNotFound)

	_, err = f.svc.Authenticate(ctx, login.AccessToken)
	assert.ErrorIs(t, err, autherr.ErrTokenRevoked)
	assert.Equal(t, autherr.ReasonRevoked, autherr.ReasonOf(err))

	assert.Len(t, f.rec.byAction(audit.ActionLogout), 1)
	assert.Len(t, f.rec.byAction(audit.ActionTokenRevoked), 1)

	err = f.svc.Logout(ctx, LogoutInput{UserID: "ghost"}, meta)
	var nf *autherr.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestRevokeAccessToken(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	ctx := context.Background()
	login, err := f.svc.Login(ctx, LoginInput{Username: "alice", Password: alicePwd}, meta)
	require.NoError(t, err)

	require.NoError(t, f.svc.RevokeAccessToken(ctx, login.AccessToken, meta))
	require.NoError(t, f.svc.RevokeAccessToken(ctx, login.AccessToken, meta))
	assert.Len(t, f.rec.byAction(audit.ActionTokenRevoked), 1)

	err = f.svc.RevokeAccessToken(ctx, "garbage", meta)
	assert.ErrorIs(t, err, autherr.ErrTokenMalformed)

	f.clk.Advance(16 * time.Minute)
	other, err := f.svc.Login(ctx, LoginInput{Username: "alice", Password: alicePwd}, meta)
	require.NoError(t, err)
	f.clk.Advance(16 * time.Minute)
	assert.NoError(t, f.svc.RevokeAccessToken(ctx, other.AccessToken, meta), "expired tokens are a no-op")
	_, err = f.svc.Authenticate(ctx, other.AccessToken)
	assert.ErrorIs(t, err, autherr.ErrTokenExpired)
}
