// Package idempotency remembers the response of a request made with an
// Idempotency-Key header so a client retry does not repeat the side
// effects.  State lives in Redis; without Redis every request runs.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInProgress is returned when the same key is still being processed.
var ErrInProgress = errors.New("request with this idempotency key is in progress")

const inFlight = "__in_flight__"

// InFlightTTL bounds how long a claimed key blocks retries when the
// request that claimed it never completes or aborts.
const InFlightTTL = 2 * time.Minute

type ctxKey struct{}

func WithKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ctxKey{}, key)
}

// GetKey returns the key stored by WithKey, if any.
func GetKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(ctxKey{}).(string)
	return key, ok && key != ""
}

type Store struct {
	rdb  *redis.Client
	ttl  time.Duration
	lock time.Duration
}

// NewStore returns a Store keeping results for ttl.  A nil client yields a
// Store that never deduplicates.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	lock := InFlightTTL
	if ttl < lock {
		lock = ttl
	}
	return &Store{rdb: rdb, ttl: ttl, lock: lock}
}

func redisKey(scope, key string) string { return "idem:" + scope + ":" + key }

// Begin claims key within scope.  When the key was already completed the
// stored response is returned with started == false.  When this call
// claimed the key, started is true and the caller must finish with
// Complete or Abort.  The claim itself expires after InFlightTTL; only a
// completed response is kept for the full ttl.
func (s *Store) Begin(ctx context.Context, scope, key string) (cached []byte, started bool, err error) {
	if s == nil || s.rdb == nil {
		return nil, true, nil
	}
	k := redisKey(scope, key)
	ok, err := s.rdb.SetNX(ctx, k, inFlight, s.lock).Result()
	if err != nil {
		return nil, false, err
	}
	if ok {
		return nil, true, nil
	}
	val, err := s.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls
		return s.Begin(ctx, scope, key)
	}
	if err != nil {
		return nil, false, err
	}
	if val == inFlight {
		return nil, false, ErrInProgress
	}
	return []byte(val), false, nil
}

// Complete stores the response for key.
func (s *Store) Complete(ctx context.Context, scope, key string, response []byte) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Set(ctx, redisKey(scope, key), string(response), s.ttl).Err()
}

// Abort releases key so a retry runs the request again.
func (s *Store) Abort(ctx context.Context, scope, key string) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, redisKey(scope, key)).Err()
}
