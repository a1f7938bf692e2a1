package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache is a Redis-backed implementation of the same operations
// Cache provides in-process, for cross-node sharing of presence and
// session state.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCache wraps an existing Redis client. keyPrefix namespaces all
// keys this cache touches (e.g. "partshub:cache:").
func NewRedisCache(client *redis.Client, keyPrefix string) *RedisCache {
	return &RedisCache{client: client, keyPrefix: keyPrefix}
}

func (c *RedisCache) key(k string) string {
	return c.keyPrefix + k
}

// Get fetches a single key, JSON-decoding it into dest.
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Set JSON-encodes value and stores it under key with the given ttl.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// GetMany fetches multiple keys with a single MGET, returning only the
// raw bytes found for keys that exist.
func (c *RedisCache) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.key(k)
	}

	values, err := c.client.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	result := make(map[string][]byte, len(keys))
	for i, v := range values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		result[keys[i]] = []byte(s)
	}
	return result, nil
}

// SetMany JSON-encodes each value and writes them in one pipeline, one SET
// per key carrying ttl.
func (c *RedisCache) SetMany(ctx context.Context, values map[string]interface{}, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for key, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		pipe.Set(ctx, c.key(key), raw, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipelined set: %w", err)
	}
	return nil
}

// DeleteMany removes multiple keys in one call.
func (c *RedisCache) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.key(k)
	}

	if err := c.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// AddToSet adds members to a Redis set stored under key.
func (c *RedisCache) AddToSet(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	if len(members) == 0 {
		return nil
	}

	vals := make([]interface{}, len(members))
	for i, m := range members {
		vals[i] = m
	}

	fullKey := c.key(key)
	if err := c.client.SAdd(ctx, fullKey, vals...).Err(); err != nil {
		return fmt.Errorf("redis sadd %s: %w", key, err)
	}
	if ttl > 0 {
		if err := c.client.Expire(ctx, fullKey, ttl).Err(); err != nil {
			return fmt.Errorf("redis expire %s: %w", key, err)
		}
	}
	return nil
}

// GetSetMembers returns the members of a Redis set stored under key.
func (c *RedisCache) GetSetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.client.SMembers(ctx, c.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", key, err)
	}
	return members, nil
}

// InvalidateTag deletes all keys registered under a tag set
// (`cache:tag:<tag>`) along with the tag set itself.
func (c *RedisCache) InvalidateTag(ctx context.Context, tag string) error {
	tagKey := c.key("tag:" + tag)

	members, err := c.client.SMembers(ctx, tagKey).Result()
	if err != nil {
		return fmt.Errorf("redis smembers %s: %w", tagKey, err)
	}

	if len(members) > 0 {
		if err := c.client.Del(ctx, members...).Err(); err != nil {
			return fmt.Errorf("redis del tagged keys: %w", err)
		}
	}

	if err := c.client.Del(ctx, tagKey).Err(); err != nil {
		return fmt.Errorf("redis del tag set %s: %w", tagKey, err)
	}
	return nil
}

// TagKey registers key under tag so a later InvalidateTag can remove it.
func (c *RedisCache) TagKey(ctx context.Context, tag, key string) error {
	if err := c.client.SAdd(ctx, c.key("tag:"+tag), c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis tag %s: %w", key, err)
	}
	return nil
}

// Delete removes a single key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
