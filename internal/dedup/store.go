// Package dedup guarantees at-most-once processing of inbound lead events.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDuplicateEvent indicates the idempotency key was already claimed.
// Callers acknowledge the event without reprocessing it.
var ErrDuplicateEvent = errors.New("dedup: duplicate event")

// Store claims idempotency keys atomically via SET NX.
type Store struct {
	redis     *redis.Client
	retention time.Duration
}

// NewStore creates a dedup store. Keys expire after the retention window;
// source platforms do not retry deliveries older than that.
func NewStore(redisClient *redis.Client, retention time.Duration) *Store {
	if redisClient == nil {
		panic("dedup: redis client required")
	}
	if retention <= 0 {
		retention = 60 * 24 * time.Hour
	}
	return &Store{redis: redisClient, retention: retention}
}

func (s *Store) key(orgID, idempotencyKey string) string {
	return fmt.Sprintf("dedup:%s:%s", orgID, idempotencyKey)
}

// Claim atomically marks the key as processed. Returns ErrDuplicateEvent when
// another delivery already claimed it.
func (s *Store) Claim(ctx context.Context, orgID, idempotencyKey string) error {
	ok, err := s.redis.SetNX(ctx, s.key(orgID, idempotencyKey), time.Now().UTC().Format(time.RFC3339), s.retention).Result()
	if err != nil {
		return fmt.Errorf("dedup: claim: %w", err)
	}
	if !ok {
		return ErrDuplicateEvent
	}
	return nil
}

// Release frees a claimed key so a failed pipeline run can be retried by the
// source platform without tripping dedup.
func (s *Store) Release(ctx context.Context, orgID, idempotencyKey string) error {
	if err := s.redis.Del(ctx, s.key(orgID, idempotencyKey)).Err(); err != nil {
		return fmt.Errorf("dedup: release: %w", err)
	}
	return nil
}

// Seen reports whether the key has been claimed, without claiming it.
func (s *Store) Seen(ctx context.Context, orgID, idempotencyKey string) (bool, error) {
	err := s.redis.Get(ctx, s.key(orgID, idempotencyKey)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup: seen: %w", err)
	}
	return true, nil
}
