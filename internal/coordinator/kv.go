package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is the coordination store: an expiring key/value space with
// atomic set-if-absent and per-machine push queues. The store, not the
// database, is the authority for lock state.
type KV interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, key string) error
	RPush(ctx context.Context, key, value string) error
}

// redisKV backs the coordination store with Redis.
type redisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) KV {
	return &redisKV{client: client}
}

func (r *redisKV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *redisKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *redisKV) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *redisKV) RPush(ctx context.Context, key, value string) error {
	return r.client.RPush(ctx, key, value).Err()
}

// memoryKV is an in-process KV with expiry, used by tests and
// single-machine deployments without a Redis.
type memoryKV struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	queues  map[string][]string
	now     func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func NewMemoryKV() KV {
	return &memoryKV{
		entries: make(map[string]memoryEntry),
		queues:  make(map[string][]string),
		now:     time.Now,
	}
}

func (m *memoryKV) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok && !m.expired(e) {
		return false, nil
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = memoryEntry{value: value, expiresAt: expiresAt}
	return true, nil
}

func (m *memoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || m.expired(e) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *memoryKV) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memoryKV) RPush(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[key] = append(m.queues[key], value)
	return nil
}

func (m *memoryKV) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && m.now().After(e.expiresAt)
}
