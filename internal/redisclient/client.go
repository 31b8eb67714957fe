package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bike-marketplace/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// AcquireLock acquires a distributed lock and returns the owner token
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()

	ok, err := c.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", lockKey, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases a distributed lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{lockKey}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// ClaimIdempotencyKey stores an idempotency key with TTL. It returns false
// when the key already exists.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), "1", ttl).Result()
}

// GetCache reads a cached value
func (c *Client) GetCache(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, fmt.Sprintf("cache:%s", key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// SetCache stores a value with TTL
func (c *Client) SetCache(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("cache:%s", key), value, ttl).Err()
}

// DeleteCache removes a cached value
func (c *Client) DeleteCache(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("cache:%s", key)).Err()
}

// GetSession resolves a bearer token written by the auth service
func (c *Client) GetSession(ctx context.Context, token string) (*models.Principal, error) {
	raw, err := c.rdb.Get(ctx, fmt.Sprintf("session:%s", token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session: %w", models.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}

	var p models.Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid session payload: %w", err)
	}
	if p.UserID == 0 || p.Role == "" {
		return nil, fmt.Errorf("incomplete session: %w", models.ErrUnauthorized)
	}
	return &p, nil
}
