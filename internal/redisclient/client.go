package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks connectivity
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Wrap builds a Client around an existing go-redis client
func Wrap(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks that Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// GetCart returns the serialized cart stored at key, or nil if absent
func (c *Client) GetCart(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get cart failed: %w", err)
	}
	return data, nil
}

// SetCart stores the serialized cart at key. A zero ttl keeps it forever.
func (c *Client) SetCart(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart failed: %w", err)
	}
	return nil
}

// DeleteCart removes the cart stored at key
func (c *Client) DeleteCart(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func priceKey(id string) string {
	return fmt.Sprintf("catalog:price:%s", id)
}

// GetCachedPriceRows returns the cached rows among ids. Entries that are
// missing or unreadable are reported in misses.
func (c *Client) GetCachedPriceRows(ctx context.Context, ids []string) (map[string]models.PriceRow, []string, error) {
	hits := make(map[string]models.PriceRow, len(ids))
	if len(ids) == 0 {
		return hits, nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = priceKey(id)
	}

	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, ids, fmt.Errorf("redis mget failed: %w", err)
	}

	var misses []string
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			misses = append(misses, ids[i])
			continue
		}
		var row models.PriceRow
		if err := json.Unmarshal([]byte(s), &row); err != nil {
			misses = append(misses, ids[i])
			continue
		}
		hits[ids[i]] = row
	}
	return hits, misses, nil
}

// CachePriceRows stores rows with the given TTL in one pipeline
func (c *Client) CachePriceRows(ctx context.Context, rows []models.PriceRow, ttl time.Duration) error {
	if len(rows) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal price row: %w", err)
		}
		pipe.Set(ctx, priceKey(row.ID), data, ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// ClaimEvent records eventID as processed. It returns false when the event
// was already claimed.
func (c *Client) ClaimEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("processed:%s", eventID), "1", ttl).Result()
}

// ReleaseEvent forgets a claim so the event can be processed again
func (c *Client) ReleaseEvent(ctx context.Context, eventID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("processed:%s", eventID)).Err()
}
