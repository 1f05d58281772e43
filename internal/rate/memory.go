package rate

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/accesscore/internal/util/keylock"
)

type window struct {
	hits []time.Time
}

// evict descarta los hits estrictamente anteriores a cutoff.
func (w *window) evict(cutoff time.Time) {
	i := 0
	for i < len(w.hits) && w.hits[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.hits = append(w.hits[:0], w.hits[i:]...)
	}
}

// MemoryLimiter guarda los timestamps en proceso. Cada clave vive en go-cache
// con TTL = ventana, así las IPs que dejan de pegar se reclaman solas.
type MemoryLimiter struct {
	c      *gocache.Cache
	locks  *keylock.Striped
	window time.Duration
	now    func() time.Time
}

type MemoryOption func(*MemoryLimiter)

func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryLimiter) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMemoryLimiter(window time.Duration, opts ...MemoryOption) *MemoryLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	m := &MemoryLimiter{
		c:      gocache.New(window, window),
		locks:  keylock.NewStriped(256),
		window: window,
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int) (Result, error) {
	if limit <= 0 {
		return Result{}, ErrInvalidLimit
	}
	mu := m.locks.For(key)
	mu.Lock()
	defer mu.Unlock()

	now := m.now()
	w := &window{}
	if v, ok := m.c.Get(key); ok {
		w = v.(*window)
	}
	w.evict(now.Add(-m.window))

	res := Result{Limit: limit, CurrentHits: len(w.hits)}
	if len(w.hits) >= limit {
		res.RetryAfter = w.hits[0].Add(m.window).Sub(now)
		if res.RetryAfter <= 0 {
			res.RetryAfter = time.Millisecond
		}
		m.c.Set(key, w, m.window)
		return res, nil
	}
	w.hits = append(w.hits, now)
	res.Allowed = true
	res.CurrentHits = len(w.hits)
	res.Remaining = limit - len(w.hits)
	m.c.Set(key, w, m.window)
	return res, nil
}

// Cleanup borra las claves cuya ventana quedó vacía según el reloj del limiter.
// go-cache ya las reclama por TTL; esto sirve cuando el reloj está inyectado.
func (m *MemoryLimiter) Cleanup() int {
	cutoff := m.now().Add(-m.window)
	n := 0
	for key := range m.c.Items() {
		mu := m.locks.For(key)
		mu.Lock()
		if v, ok := m.c.Get(key); ok {
			w := v.(*window)
			w.evict(cutoff)
			if len(w.hits) == 0 {
				m.c.Delete(key)
				n++
			}
		}
		mu.Unlock()
	}
	return n
}

// Len retorna la cantidad de claves con estado.
func (m *MemoryLimiter) Len() int { return m.c.ItemCount() }
