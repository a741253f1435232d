package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/ragserve/internal/model"
	"github.com/kart-io/ragserve/pkg/utils/json"
)

// AnswerCacheConfig configures the answer cache.
type AnswerCacheConfig struct {
	// Enabled toggles the cache.
	Enabled bool
	// TTL is how long cached answers live.
	TTL time.Duration
	// KeyPrefix namespaces the cache keys.
	KeyPrefix string
}

// DefaultAnswerCacheConfig returns a disabled cache configuration.
func DefaultAnswerCacheConfig() *AnswerCacheConfig {
	return &AnswerCacheConfig{
		Enabled:   false,
		TTL:       1 * time.Hour,
		KeyPrefix: "ragserve:answer:",
	}
}

// AnswerCache caches full chat responses by question. Identical questions
// skip retrieval and generation entirely until the entry expires.
type AnswerCache struct {
	redis  *goredis.Client
	config *AnswerCacheConfig
}

// NewAnswerCache creates an answer cache. A nil config disables caching.
func NewAnswerCache(redis *goredis.Client, config *AnswerCacheConfig) *AnswerCache {
	if config == nil {
		config = DefaultAnswerCacheConfig()
	}
	return &AnswerCache{
		redis:  redis,
		config: config,
	}
}

// cacheKey hashes the question so arbitrary text maps to a bounded key.
func (c *AnswerCache) cacheKey(question string) string {
	hash := sha256.Sum256([]byte(question))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// Get returns the cached response for a question, or (nil, nil) on a miss.
func (c *AnswerCache) Get(ctx context.Context, question string) (*model.ChatResponse, error) {
	if !c.config.Enabled || c.redis == nil {
		return nil, fmt.Errorf("cache not enabled or redis not available")
	}

	key := c.cacheKey(question)

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			logger.Debugw("answer cache miss", "key", key)
			return nil, nil
		}
		logger.Warnw("failed to read answer cache", "error", err.Error(), "key", key)
		return nil, err
	}

	var resp model.ChatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		logger.Warnw("failed to unmarshal cached answer", "error", err.Error(), "key", key)
		// Drop the corrupted entry so it cannot poison later lookups.
		_ = c.redis.Del(ctx, key).Err()
		return nil, err
	}

	logger.Infow("answer cache hit", "key", key, "answer_length", len(resp.Answer))
	return &resp, nil
}

// Set stores a response under the question's key.
func (c *AnswerCache) Set(ctx context.Context, question string, resp *model.ChatResponse) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	key := c.cacheKey(question)

	data, err := json.Marshal(resp)
	if err != nil {
		logger.Warnw("failed to marshal answer for caching", "error", err.Error())
		return err
	}

	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to write answer cache", "error", err.Error(), "key", key)
		return err
	}

	return nil
}

// Clear removes every cached answer under the configured prefix.
func (c *AnswerCache) Clear(ctx context.Context) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	pattern := c.config.KeyPrefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()

	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", iter.Val())
		} else {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		logger.Warnw("error scanning answer cache", "error", err.Error())
		return err
	}

	logger.Infow("cleared answer cache", "deleted_count", deleted)
	return nil
}

// Stats reports cache configuration and the current key count.
func (c *AnswerCache) Stats(ctx context.Context) (map[string]any, error) {
	if !c.config.Enabled || c.redis == nil {
		return map[string]any{"enabled": false}, nil
	}

	pattern := c.config.KeyPrefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()

	count := 0
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return map[string]any{
		"enabled":    true,
		"key_count":  count,
		"ttl":        c.config.TTL.String(),
		"key_prefix": c.config.KeyPrefix,
	}, nil
}
