// Package sequence hands out per-tenant, per-day counters for invoice numbers.
package sequence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Sequencer returns the next number for tenantID on the UTC day of at,
// starting at 1.
type Sequencer interface {
	Next(ctx context.Context, tenantID uuid.UUID, at time.Time) (int64, error)
}

// Floor reports the highest number already persisted for a tenant and day.
// A counter that starts from scratch (process restart, flushed cache)
// resumes above it.
type Floor func(ctx context.Context, tenantID uuid.UUID, day string) (int64, error)

func dayOf(at time.Time) string {
	return at.UTC().Format("20060102")
}

func dayKey(tenantID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("tableflow:invoice-seq:%s:%s", tenantID, dayOf(at))
}

// RedisSequencer shares counters across API nodes.
type RedisSequencer struct {
	rdb   redis.Cmdable
	floor Floor
	ttl   time.Duration
}

func NewRedisSequencer(rdb redis.Cmdable, floor Floor) *RedisSequencer {
	return &RedisSequencer{rdb: rdb, floor: floor, ttl: 48 * time.Hour}
}

func (s *RedisSequencer) Next(ctx context.Context, tenantID uuid.UUID, at time.Time) (int64, error) {
	key := dayKey(tenantID, at)
	if s.floor != nil {
		if err := s.seed(ctx, key, tenantID, at); err != nil {
			return 0, err
		}
	}

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

// seed sets a missing counter to the persisted floor before anyone
// increments it. SETNX lets concurrent seeders race safely: the first write
// wins and every INCR lands above the floor.
func (s *RedisSequencer) seed(ctx context.Context, key string, tenantID uuid.UUID, at time.Time) error {
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("exists %s: %w", key, err)
	}
	if exists > 0 {
		return nil
	}
	used, err := s.floor(ctx, tenantID, dayOf(at))
	if err != nil {
		return fmt.Errorf("sequence floor: %w", err)
	}
	if err := s.rdb.SetNX(ctx, key, used, s.ttl).Err(); err != nil {
		return fmt.Errorf("setnx %s: %w", key, err)
	}
	return nil
}

// LocalSequencer keeps counters in memory for single-node deployments.
type LocalSequencer struct {
	floor Floor

	mu       sync.Mutex
	counters map[string]int64
}

func NewLocalSequencer(floor Floor) *LocalSequencer {
	return &LocalSequencer{floor: floor, counters: make(map[string]int64)}
}

func (s *LocalSequencer) Next(ctx context.Context, tenantID uuid.UUID, at time.Time) (int64, error) {
	key := dayKey(tenantID, at)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.counters[key]; !ok && s.floor != nil {
		used, err := s.floor(ctx, tenantID, dayOf(at))
		if err != nil {
			return 0, fmt.Errorf("sequence floor: %w", err)
		}
		s.counters[key] = used
	}
	s.counters[key]++
	return s.counters[key], nil
}
