package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"registration-service/internal/models"

	"github.com/go-redis/redis/v8"
)

const batchListKey = "batches:open"

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

// SaveSession stores a session token -> openid mapping with TTL.
func (c *Client) SaveSession(ctx context.Context, token, openID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("session:%s", token), openID, ttl).Err()
}

// GetSession resolves a session token to an openid.
func (c *Client) GetSession(ctx context.Context, token string) (string, error) {
	openID, err := c.rdb.Get(ctx, fmt.Sprintf("session:%s", token)).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("session not found")
	}
	if err != nil {
		return "", err
	}
	return openID, nil
}

// DeleteSession removes a session token.
func (c *Client) DeleteSession(ctx context.Context, token string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("session:%s", token)).Err()
}

// GetCachedBatches returns the cached open-batch list. A miss or a decode
// failure reads as cold cache; the caller falls back to the database.
func (c *Client) GetCachedBatches(ctx context.Context) ([]models.Batch, bool) {
	raw, err := c.rdb.Get(ctx, batchListKey).Bytes()
	if err != nil {
		return nil, false
	}

	var batches []models.Batch
	if err := json.Unmarshal(raw, &batches); err != nil {
		return nil, false
	}
	return batches, true
}

// SetCachedBatches stores the open-batch list with TTL.
func (c *Client) SetCachedBatches(ctx context.Context, batches []models.Batch, ttl time.Duration) error {
	raw, err := json.Marshal(batches)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, batchListKey, raw, ttl).Err()
}

// InvalidateBatchCache drops the cached batch list.
func (c *Client) InvalidateBatchCache(ctx context.Context) error {
	return c.rdb.Del(ctx, batchListKey).Err()
}
