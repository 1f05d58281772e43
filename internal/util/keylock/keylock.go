// Package keylock provee locks por clave para serializar operaciones sobre
// la misma clave sin bloquear claves distintas.
package keylock

import (
	"hash/fnv"
	"sync"
)

// KeyedMutex entrega un mutex exclusivo por clave. Las entradas se liberan
// cuando nadie las retiene, así el mapa no crece con claves viejas.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Lock bloquea key y retorna la función de unlock.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len retorna cuántas claves tienen lock retenido o en espera.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// Striped reparte claves en N mutexes fijos (fnv-1a). Sirve para proteger
// read-modify-write sobre un store compartido sin un lock global.
type Striped struct {
	stripes []sync.Mutex
}

// NewStriped crea n stripes (mínimo 1).
func NewStriped(n int) *Striped {
	if n < 1 {
		n = 1
	}
	return &Striped{stripes: make([]sync.Mutex, n)}
}

// For retorna el mutex de la clave.
func (s *Striped) For(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.stripes[h.Sum32()%uint32(len(s.stripes))]
}
