// Package counters keeps the two advisory counters, queue_size and
// active_processing. They are read-modify-written without any atomicity and
// drift under concurrent consumers; nothing uses them for admission control.
package counters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/saeedzarbi/Ai-agent-worker/internal/kv"
)

// Counter names.
const (
	QueueSize        = "queue_size"
	ActiveProcessing = "active_processing"
)

// Store reads and writes named integers in a shared key-value store.
type Store interface {
	Get(ctx context.Context, name string) (int64, error)
	Set(ctx context.Context, name string, v int64) error
}

// RedisStore keeps counters under <prefix>:counter:<name>.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(name string) string {
	return kv.Key(s.prefix, "counter", name)
}

// Get returns 0 for a counter that was never written.
func (s *RedisStore) Get(ctx context.Context, name string) (int64, error) {
	raw, err := s.rdb.Get(ctx, s.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter %s: %w", name, err)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse counter %s=%q: %w", name, raw, err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, name string, v int64) error {
	if err := s.rdb.Set(ctx, s.key(name), v, 0).Err(); err != nil {
		return fmt.Errorf("set counter %s: %w", name, err)
	}
	return nil
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.Mutex
	vals map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vals: make(map[string]int64)}
}

func (s *MemoryStore) Get(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vals[name], nil
}

func (s *MemoryStore) Set(_ context.Context, name string, v int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[name] = v
	return nil
}
