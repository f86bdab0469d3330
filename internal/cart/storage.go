package cart

import (
	"bytes"
	"context"
	"sync"
	"time"

	"storefront/internal/redisclient"
)

// StorageKey is the fixed key carts are persisted under.
const StorageKey = "storefront_cart_v1"

// Storage persists the serialized cart. Load returns nil data when nothing
// has been saved yet.
type Storage interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// MemoryStorage keeps the cart in process memory.
type MemoryStorage struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryStorage(initial []byte) *MemoryStorage {
	return &MemoryStorage{data: initial}
}

func (m *MemoryStorage) Load(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

func (m *MemoryStorage) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

// RedisStorage keeps one cart session under StorageKey:<sessionID>.
type RedisStorage struct {
	client *redisclient.Client
	key    string
	ttl    time.Duration
}

func NewRedisStorage(client *redisclient.Client, sessionID string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{
		client: client,
		key:    SessionKey(sessionID),
		ttl:    ttl,
	}
}

// SessionKey returns the Redis key of a cart session.
func SessionKey(sessionID string) string {
	return StorageKey + ":" + sessionID
}

func (r *RedisStorage) Load(ctx context.Context) ([]byte, error) {
	return r.client.GetCart(ctx, r.key)
}

// Save drops the key for an empty cart instead of storing "[]".
func (r *RedisStorage) Save(ctx context.Context, data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("[]")) {
		return r.client.DeleteCart(ctx, r.key)
	}
	return r.client.SetCart(ctx, r.key, data, r.ttl)
}
