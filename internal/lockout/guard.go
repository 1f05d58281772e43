// Package lockout implementa el guard de fuerza bruta por identificador:
// Clear → Accumulating(n) → Locked(until), con vuelta lazy a Clear.
package lockout

import (
	"context"
	"strings"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultDuration    = 15 * time.Minute
	DefaultAttemptTTL  = 24 * time.Hour

	// lockGrace extiende el TTL de reclamación de un lock para que el
	// chequeo lazy (con el reloj inyectado) siempre vea la entrada.
	lockGrace = time.Minute
)

type Config struct {
	MaxAttempts int
	Duration    time.Duration
	// AttemptTTL: un Accumulating sin fallos nuevos se olvida pasado este
	// tiempo. 0 = nunca.
	AttemptTTL time.Duration
}

func DefaultConfig() Config {
	return Config{MaxAttempts: DefaultMaxAttempts, Duration: DefaultDuration, AttemptTTL: DefaultAttemptTTL}
}

// Status es el resultado de registrar un fallo.
type Status struct {
	Failures    int
	Locked      bool
	LockedUntil time.Time
	// JustLocked es true solo en la transición Accumulating → Locked.
	JustLocked bool
}

// Guard es seguro para uso concurrente; la atomicidad por clave la da el Store.
type Guard struct {
	store Store
	cfg   Config
	now   func() time.Time
}

type Option func(*Guard)

func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

func New(store Store, cfg Config, opts ...Option) *Guard {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.AttemptTTL < 0 {
		cfg.AttemptTTL = 0
	}
	g := &Guard{store: store, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Guard) Config() Config { return g.cfg }

func normalize(id string) string { return strings.TrimSpace(id) }

// RecordFailure suma un fallo. Al llegar a MaxAttempts bloquea por Duration.
// Fallos sobre una cuenta ya bloqueada no extienden el lock.
func (g *Guard) RecordFailure(ctx context.Context, id string) (Status, error) {
	id = normalize(id)
	if id == "" {
		return Status{}, nil
	}
	now := g.now()
	justLocked := false

	st, err := g.store.Update(ctx, id, func(cur State, exists bool) (State, bool, time.Duration) {
		// el store puede reintentar fn; solo cuenta la última ejecución
		justLocked = false
		if exists && cur.LockedAt(now) {
			return cur, true, cur.LockedUntil.Sub(now) + lockGrace
		}
		if !exists || cur.Expired(now) {
			cur = State{}
		}
		cur.Failures++
		cur.LastFailure = now
		if cur.Failures >= g.cfg.MaxAttempts {
			cur.LockedUntil = now.Add(g.cfg.Duration)
			justLocked = true
			return cur, true, g.cfg.Duration + lockGrace
		}
		return cur, true, g.cfg.AttemptTTL
	})
	if err != nil {
		return Status{}, err
	}
	return Status{
		Failures:    st.Failures,
		Locked:      st.LockedAt(now),
		LockedUntil: st.LockedUntil,
		JustLocked:  justLocked,
	}, nil
}

// RecordSuccess vuelve a Clear desde cualquier estado.
func (g *Guard) RecordSuccess(ctx context.Context, id string) error {
	id = normalize(id)
	if id == "" {
		return nil
	}
	return g.store.Delete(ctx, id)
}

// IsLocked limpia de forma lazy un lock vencido.
func (g *Guard) IsLocked(ctx context.Context, id string) (bool, error) {
	st, ok, err := g.state(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	return st.LockedAt(g.now()), nil
}

// MinutesRemaining redondea hacia arriba; 0 si no está bloqueado.
func (g *Guard) MinutesRemaining(ctx context.Context, id string) (int, error) {
	st, ok, err := g.state(ctx, id)
	if err != nil || !ok {
		return 0, err
	}
	return MinutesUntil(g.now(), st.LockedUntil), nil
}

// Failures retorna los fallos acumulados (0 en Clear).
func (g *Guard) Failures(ctx context.Context, id string) (int, error) {
	st, ok, err := g.state(ctx, id)
	if err != nil || !ok {
		return 0, err
	}
	return st.Failures, nil
}

func (g *Guard) state(ctx context.Context, id string) (State, bool, error) {
	id = normalize(id)
	if id == "" {
		return State{}, false, nil
	}
	st, ok, err := g.store.Get(ctx, id)
	if err != nil || !ok {
		return State{}, false, err
	}
	now := g.now()
	if !st.Expired(now) {
		return st, true, nil
	}
	// Locked(until) vencido → Clear, solo si nadie lo cambió en el medio.
	_, err = g.store.Update(ctx, id, func(cur State, exists bool) (State, bool, time.Duration) {
		if !exists || cur.Expired(now) {
			return State{}, false, 0
		}
		return cur, true, ttlFor(cur, now, g.cfg)
	})
	return State{}, false, err
}

func ttlFor(st State, now time.Time, cfg Config) time.Duration {
	if st.LockedAt(now) {
		return st.LockedUntil.Sub(now) + lockGrace
	}
	return cfg.AttemptTTL
}

// MinutesUntil redondea hacia arriba los minutos que faltan para until.
func MinutesUntil(now, until time.Time) int {
	if until.IsZero() || !now.Before(until) {
		return 0
	}
	d := until.Sub(now)
	m := int(d / time.Minute)
	if d%time.Minute != 0 {
		m++
	}
	return m
}
