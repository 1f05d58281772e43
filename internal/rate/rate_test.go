package rate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func limiters(t *testing.T, clk *fakeClock) map[string]Limiter {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rl := NewRedisLimiter(rdb, "rl:", time.Minute)
	rl.now = clk.Now
	return map[string]Limiter{
		"memory": NewMemoryLimiter(time.Minute, WithClock(clk.Now)),
		"redis":  rl,
	}
}

func TestLimiter_SixthRequestRejected(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	for name, l := range limiters(t, clk) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := Key("10.0.0."+name, ClassAuth)
			start := clk.Now()

			for i := 1; i <= 5; i++ {
				res, err := l.Allow(ctx, key, 5)
				require.NoError(t, err)
				assert.True(t, res.Allowed, "hit %d", i)
				assert.Equal(t, 5-i, res.Remaining)
				clk.Advance(time.Second)
			}

			res, err := l.Allow(ctx, key, 5)
			require.NoError(t, err)
			assert.False(t, res.Allowed)
			assert.Equal(t, 5, res.CurrentHits)
			assert.Equal(t, start.Add(time.Minute).Sub(clk.Now()), res.RetryAfter)

			// el primer hit sale de la ventana → entra uno más
			clk.Advance(start.Add(time.Minute + time.Millisecond).Sub(clk.Now()))
			res, err = l.Allow(ctx, key, 5)
			require.NoError(t, err)
			assert.True(t, res.Allowed)

			// otra clase u otra IP no comparten ventana
			res, err = l.Allow(ctx, Key("10.0.0."+name, ClassDefault), 5)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
		})
	}
}

func TestLimiter_WindowFullyElapsed(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	for name, l := range limiters(t, clk) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				_, err := l.Allow(ctx, "k", 5)
				require.NoError(t, err)
			}
			res, err := l.Allow(ctx, "k", 5)
			require.NoError(t, err)
			require.False(t, res.Allowed)

			clk.Advance(time.Minute + time.Millisecond)
			res, err = l.Allow(ctx, "k", 5)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, 1, res.CurrentHits)
		})
	}
}

func TestLimiter_InvalidLimit(t *testing.T) {
	clk := &fakeClock{t: time.Now()}
	for name, l := range limiters(t, clk) {
		t.Run(name, func(t *testing.T) {
			_, err := l.Allow(context.Background(), "k", 0)
			assert.ErrorIs(t, err, ErrInvalidLimit)
		})
	}
}

func TestMemoryLimiter_ConcurrentHitsRespectLimit(t *testing.T) {
	l := NewMemoryLimiter(time.Minute)
	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Allow(context.Background(), "hot", 60)
			assert.NoError(t, err)
			if res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 60, allowed.Load())
}

func TestMemoryLimiter_CleanupReclaimsStaleKeys(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter(time.Minute, WithClock(clk.Now))
	for i := 0; i < 1000; i++ {
		_, err := l.Allow(context.Background(), Key(fmt.Sprintf("10.1.%d.%d", i/256, i%256), ClassDefault), 60)
		require.NoError(t, err)
	}
	assert.Equal(t, 1000, l.Len())

	clk.Advance(30 * time.Second)
	assert.Zero(t, l.Cleanup())
	_, _ = l.Allow(context.Background(), "fresh", 60)

	clk.Advance(31 * time.Second)
	assert.Equal(t, 1000, l.Cleanup())
	assert.Equal(t, 1, l.Len())
}

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, ClassAuth, p.Classify("/v1/auth/login"))
	assert.Equal(t, ClassDefault, p.Classify("/v1/rbac/roles"))
	assert.Equal(t, 5, p.LimitFor(ClassAuth))
	assert.Equal(t, 60, p.LimitFor(ClassDefault))

	assert.True(t, p.Bypass(httptest.NewRequest(http.MethodOptions, "/v1/auth/login", nil)))
	assert.True(t, p.Bypass(httptest.NewRequest(http.MethodGet, "/static/app.js", nil)))
	assert.True(t, p.Bypass(httptest.NewRequest(http.MethodGet, "/public/logo.png", nil)))
	assert.False(t, p.Bypass(httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)))
}

func TestPolicy_ClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:5555"

	p := DefaultPolicy()
	assert.Equal(t, "192.0.2.10", p.ClientIP(r))

	r.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1, 10.0.0.2")
	assert.Equal(t, "203.0.113.7", p.ClientIP(r))

	p.TrustForwarded = false
	assert.Equal(t, "192.0.2.10", p.ClientIP(r))

	r.RemoteAddr = "unix-socket"
	assert.Equal(t, "unix-socket", p.ClientIP(r))

	assert.Equal(t, "203.0.113.7|auth", Key("203.0.113.7", ClassAuth))
}
