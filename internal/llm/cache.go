package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ModelCache stores model listings per API key.
type ModelCache interface {
	GetModels(ctx context.Context, apiKey string) (ModelList, bool, error)
	SetModels(ctx context.Context, apiKey string, list ModelList) error
}

// RedisModelCache keeps model listings in Redis under a hash of the key.
type RedisModelCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisModelCache wraps client. ttl <= 0 selects ten minutes.
func NewRedisModelCache(client *redis.Client, ttl time.Duration) *RedisModelCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisModelCache{client: client, prefix: "llm:models:", ttl: ttl}
}

// OpenRedis parses url, pings the server and returns the client.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *RedisModelCache) GetModels(ctx context.Context, apiKey string) (ModelList, bool, error) {
	raw, err := c.client.Get(ctx, c.key(apiKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ModelList{}, false, nil
	}
	if err != nil {
		return ModelList{}, false, err
	}
	var list ModelList
	if err := json.Unmarshal(raw, &list); err != nil {
		// corrupt entry: treat as a miss, it gets overwritten
		return ModelList{}, false, nil
	}
	return list, true, nil
}

func (c *RedisModelCache) SetModels(ctx context.Context, apiKey string, list ModelList) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(apiKey), raw, c.ttl).Err()
}

func (c *RedisModelCache) key(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return c.prefix + hex.EncodeToString(sum[:16])
}
