package lockout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	retryBaseDelay = time.Millisecond
	retryMaxDelay  = 50 * time.Millisecond
)

// ErrLockoutUnavailable indica que el backend no responde.
var ErrLockoutUnavailable = errors.New("lockout backend unavailable")

// RedisStore comparte el estado entre réplicas. Update usa WATCH/MULTI:
// si otra réplica toca la clave en el medio, se reintenta con backoff hasta
// que ctx se cancele. Un fallo nunca se descarta por contención.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "lockout"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string { return s.prefix + ":" + k }

func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) (State, error) {
	k := s.key(key)
	var out State

	txf := func(tx *redis.Tx) error {
		cur, exists, err := s.read(ctx, tx, k)
		if err != nil {
			return err
		}
		next, keep, ttl := fn(cur, exists)
		out = next
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if !keep {
				p.Del(ctx, k)
				return nil
			}
			b, err := json.Marshal(next)
			if err != nil {
				return err
			}
			if ttl < 0 {
				ttl = 0
			}
			p.Set(ctx, k, b, ttl)
			return nil
		})
		return err
	}

	delay := retryBaseDelay
	for {
		err := s.client.Watch(ctx, txf, k)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return State{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
		// jitter para que los competidores no reintenten en fase
		wait := delay/2 + time.Duration(rand.Int63n(int64(delay)))
		select {
		case <-ctx.Done():
			return State{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, ctx.Err())
		case <-time.After(wait):
		}
		if delay < retryMaxDelay {
			delay *= 2
		}
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (State, bool, error) {
	st, ok, err := s.read(ctx, s.client, s.key(key))
	if err != nil {
		return State{}, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return st, ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

func (s *RedisStore) read(ctx context.Context, c redis.Cmdable, k string) (State, bool, error) {
	raw, err := c.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, false, err
	}
	return st, true, nil
}
