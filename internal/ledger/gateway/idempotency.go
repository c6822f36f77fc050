package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore guarda o resultado serializado de uma operação por (chave, token).
type IdempotencyStore interface {
	Get(ctx context.Context, key, token string) ([]byte, bool, error)
	Put(ctx context.Context, key, token string, result []byte) error
}

type MemoryIdempotency struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{data: make(map[string][]byte)}
}

func (m *MemoryIdempotency) Get(_ context.Context, key, token string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[idemKey(key, token)]
	return b, ok, nil
}

func (m *MemoryIdempotency) Put(_ context.Context, key, token string, result []byte) error {
	m.mu.Lock()
	m.data[idemKey(key, token)] = result
	m.mu.Unlock()
	return nil
}

// RedisIdempotency mantém os resultados no Redis com TTL, compartilhados entre réplicas.
type RedisIdempotency struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisIdempotency(c *redis.Client, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{Client: c, TTL: ttl}
}

func (r *RedisIdempotency) Get(ctx context.Context, key, token string) ([]byte, bool, error) {
	b, err := r.Client.Get(ctx, idemKey(key, token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisIdempotency) Put(ctx context.Context, key, token string, result []byte) error {
	return r.Client.Set(ctx, idemKey(key, token), result, r.TTL).Err()
}

func idemKey(key, token string) string { return "idem:" + key + ":" + token }
