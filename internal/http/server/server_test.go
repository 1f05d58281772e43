package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/accesscore/internal/config"
	"github.com/dropDatabas3/accesscore/internal/rbac"
)

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef-server")
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func post(h http.Handler, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.RemoteAddr = "192.0.2.10:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBuild_MemoryDriver(t *testing.T) {
	cfg := testConfig(t, nil)
	app, err := Build(context.Background(), cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	defer app.Close()

	roles, err := app.RBAC.FindAllRolesByTenant(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, roles, len(rbac.PredefinedRoles))

	rec := post(app.Handler, "/v1/auth/register", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "Tr1cky!Horse-Battery",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = post(app.Handler, "/v1/auth/login", map[string]string{"username": "alice", "password": "Tr1cky!Horse-Battery"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuild_RedisBackends(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := testConfig(t, map[string]string{
		"REDIS_ADDR":      mr.Addr(),
		"CACHE_KIND":      "redis",
		"LOCKOUT_BACKEND": "redis",
		"RATE_BACKEND":    "redis",
	})
	app, err := Build(context.Background(), cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	defer app.Close()

	for i := 0; i < 5; i++ {
		rec := post(app.Handler, "/v1/auth/login", map[string]string{"username": "ghost", "password": "x"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := post(app.Handler, "/v1/auth/login", map[string]string{"username": "ghost", "password": "x"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	keys := mr.Keys()
	assert.NotEmpty(t, keys)

	rec = httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Contains(t, rec.Body.String(), `"redis":"up"`)
}

func TestBuild_UnknownDriver(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.Storage.Driver = "cassandra"
	_, err := Build(context.Background(), cfg, prometheus.NewRegistry())
	assert.Error(t, err)
}

func TestPurgeLoop_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t, nil)
	app, err := Build(context.Background(), cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- PurgeLoop(ctx, app.Revocations, 10*time.Millisecond) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("purge loop did not stop")
	}

	n, err := PurgeOnce(context.Background(), app.Revocations)
	require.NoError(t, err)
	assert.Zero(t, n)
}
