package lockout

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/accesscore/internal/util/keylock"
)

// MemoryStore guarda el estado en proceso. go-cache reclama las entradas
// cuyo TTL venció; los stripes serializan el read-modify-write por clave.
type MemoryStore struct {
	c     *gocache.Cache
	locks *keylock.Striped
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		c:     gocache.New(gocache.NoExpiration, time.Minute),
		locks: keylock.NewStriped(64),
	}
}

func (m *MemoryStore) Update(_ context.Context, key string, fn UpdateFunc) (State, error) {
	mu := m.locks.For(key)
	mu.Lock()
	defer mu.Unlock()

	var cur State
	v, ok := m.c.Get(key)
	if ok {
		cur = v.(State)
	}
	next, keep, ttl := fn(cur, ok)
	if !keep {
		m.c.Delete(key)
		return next, nil
	}
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(key, next, ttl)
	return next, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (State, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return State{}, false, nil
	}
	return v.(State), true, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	mu := m.locks.For(key)
	mu.Lock()
	m.c.Delete(key)
	mu.Unlock()
	return nil
}

// Len retorna la cantidad de identificadores con estado.
func (m *MemoryStore) Len() int { return m.c.ItemCount() }
