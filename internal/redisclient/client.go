package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
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

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// CacheOfferToken maps a reply token to its offer id for fast webhook
// resolution. The TTL tracks the offer expiry window.
func (c *Client) CacheOfferToken(ctx context.Context, token string, offerID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, "offer-token:"+token, offerID, ttl).Err()
}

// LookupOfferToken resolves a cached token to an offer id; 0 means a cache
// miss and the caller falls back to the database.
func (c *Client) LookupOfferToken(ctx context.Context, token string) (int64, error) {
	id, err := c.rdb.Get(ctx, "offer-token:"+token).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// InvalidateOfferToken drops a token mapping once the offer is resolved.
func (c *Client) InvalidateOfferToken(ctx context.Context, token string) error {
	return c.rdb.Del(ctx, "offer-token:"+token).Err()
}

// CacheSearchResults stores a provider search result page as JSON.
func (c *Client) CacheSearchResults(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal search results: %w", err)
	}
	return c.rdb.Set(ctx, "provider-search:"+key, payload, ttl).Err()
}

// GetSearchResults loads a cached search page into out; false means a miss.
func (c *Client) GetSearchResults(ctx context.Context, key string, out interface{}) (bool, error) {
	payload, err := c.rdb.Get(ctx, "provider-search:"+key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal search results: %w", err)
	}
	return true, nil
}

// InvalidateSearchResults drops every cached search page. Called when
// provider data changes underneath the cache.
func (c *Client) InvalidateSearchResults(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, "provider-search:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// CacheIdempotentRequest remembers which request an idempotency key created
func (c *Client) CacheIdempotentRequest(ctx context.Context, key string, requestID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), requestID, ttl).Err()
}

// LookupIdempotentRequest returns the request id cached for an idempotency
// key, 0 on a miss. The database mapping stays authoritative.
func (c *Client) LookupIdempotentRequest(ctx context.Context, key string) (int64, error) {
	requestID, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return requestID, nil
}

// AcquireLock acquires a distributed lock. The background sweep takes one so
// concurrent ticks do not stack.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
