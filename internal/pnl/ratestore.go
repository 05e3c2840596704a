package pnl

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateStore caches exchange rates in Redis so rates survive restarts
// and can be shared with other processes. Keys are "rate:FROM:TO".
type RateStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRateStore creates a RateStore. A zero ttl keeps rates until
// overwritten.
func NewRateStore(redisClient *redis.Client, ttl time.Duration) *RateStore {
	return &RateStore{redis: redisClient, ttl: ttl}
}

// Put stores the rate for an ordered currency pair
func (s *RateStore) Put(ctx context.Context, from, to string, rate float64) error {
	key := fmt.Sprintf("rate:%s:%s", from, to)
	return s.redis.Set(ctx, key, rate, s.ttl).Err()
}

// Get reads the rate for an ordered currency pair
func (s *RateStore) Get(ctx context.Context, from, to string) (float64, error) {
	key := fmt.Sprintf("rate:%s:%s", from, to)
	return s.redis.Get(ctx, key).Float64()
}

// Hydrate loads every cached rate into the engine's rate table.
// Missing or malformed keys are skipped with a warning.
func (s *RateStore) Hydrate(ctx context.Context, engine *Engine) error {
	iter := s.redis.Scan(ctx, 0, "rate:*", 0).Iterator()
	loaded := 0
	for iter.Next(ctx) {
		key := iter.Val()
		parts := strings.Split(key, ":")
		if len(parts) != 3 {
			continue
		}
		rate, err := s.redis.Get(ctx, key).Float64()
		if err != nil {
			log.Printf("[RateStore] Skipping %s: %v", key, err)
			continue
		}
		engine.SetExchangeRate(parts[1], parts[2], rate)
		loaded++
	}
	if err := iter.Err(); err != nil {
		return err
	}
	log.Printf("[RateStore] Hydrated %d exchange rates", loaded)
	return nil
}
