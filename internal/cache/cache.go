package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	summaryPrefix = "summary:"
	// SummaryTTL is how long a computed summary stays valid.
	SummaryTTL = 5 * time.Minute
)

type Cache struct {
	Client *redis.Client
}

func New(redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Cache{Client: client}, nil
}

func (c *Cache) Close() error {
	return c.Client.Close()
}

// GetSummary returns the cached summary JSON for an owner, or ok=false on a
// miss.
func (c *Cache) GetSummary(ctx context.Context, ownerID int64) ([]byte, bool, error) {
	key := fmt.Sprintf("%s%d", summaryPrefix, ownerID)
	data, err := c.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// SetSummary caches the summary JSON for an owner with the standard TTL.
func (c *Cache) SetSummary(ctx context.Context, ownerID int64, data []byte) error {
	key := fmt.Sprintf("%s%d", summaryPrefix, ownerID)
	return c.Client.Set(ctx, key, data, SummaryTTL).Err()
}

// InvalidateSummary drops the owner's cached summary. Called when the
// monitor set changes so the counts don't serve stale for the full TTL.
func (c *Cache) InvalidateSummary(ctx context.Context, ownerID int64) error {
	key := fmt.Sprintf("%s%d", summaryPrefix, ownerID)
	return c.Client.Del(ctx, key).Err()
}
