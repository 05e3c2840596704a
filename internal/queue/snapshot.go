package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSnapshot is returned by Load when no snapshot has been saved
var ErrNoSnapshot = errors.New("no queue snapshot found")

// SnapshotStore persists queue exports to Redis so durable retry state
// survives restarts.
type SnapshotStore struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// NewSnapshotStore creates a SnapshotStore writing under the given key.
// A zero ttl keeps snapshots until overwritten.
func NewSnapshotStore(redisClient *redis.Client, key string, ttl time.Duration) *SnapshotStore {
	if key == "" {
		key = "queue:snapshot"
	}
	return &SnapshotStore{
		redis: redisClient,
		key:   key,
		ttl:   ttl,
	}
}

// Save exports the queue and writes the blob to Redis
func Save[T any](ctx context.Context, store *SnapshotStore, q *RetryQueue[T]) error {
	data, err := q.Export()
	if err != nil {
		return err
	}
	return store.redis.Set(ctx, store.key, data, store.ttl).Err()
}

// Load reads the last snapshot from Redis into the queue
func Load[T any](ctx context.Context, store *SnapshotStore, q *RetryQueue[T]) error {
	data, err := store.redis.Get(ctx, store.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNoSnapshot
		}
		return err
	}
	return q.Import(data)
}
