package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

// ErrInFlight means another request with the same key has claimed it and not finished.
var ErrInFlight = errors.New("idempotency key in flight")

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:%s:%d:%d", topic, partition, offset)
}

// Seen marks key as processed and reports whether it already was.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}

	return !ok, nil
}

// RequestKey scopes a client supplied Idempotency-Key to its caller.
func (s *Store) RequestKey(scope, caller, key string) string {
	return fmt.Sprintf("idem:%s:%s:%s", scope, caller, key)
}

// Claim reserves key for the current request. When the key has already completed, the
// stored result is returned with claimed=false. A key claimed but not yet completed yields
// ErrInFlight.
func (s *Store) Claim(ctx context.Context, key string) (result string, claimed bool, err error) {
	ok, err := s.rdb.SetNX(ctx, key, pendingMarker, s.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; let the caller retry the claim
		return "", false, ErrInFlight
	}
	if err != nil {
		return "", false, err
	}
	if v == pendingMarker {
		return "", false, ErrInFlight
	}
	return v, false, nil
}

// Complete stores the result for a claimed key.
func (s *Store) Complete(ctx context.Context, key, result string) error {
	return s.rdb.Set(ctx, key, result, s.ttl).Err()
}

// Forget drops a claim so the request can be retried after a failure.
func (s *Store) Forget(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
