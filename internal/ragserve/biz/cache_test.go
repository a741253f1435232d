package biz

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/ragserve/internal/model"
)

func setupTestRedis(t *testing.T) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("redis not available, skipping")
	}

	client.FlushDB(ctx)
	return client
}

func testCacheConfig() *AnswerCacheConfig {
	return &AnswerCacheConfig{
		Enabled:   true,
		TTL:       time.Hour,
		KeyPrefix: "test:answer:",
	}
}

func TestAnswerCacheKeyDeterministic(t *testing.T) {
	cache := NewAnswerCache(nil, testCacheConfig())

	key1 := cache.cacheKey("what is retrieval?")
	key2 := cache.cacheKey("what is retrieval?")
	key3 := cache.cacheKey("something else")

	assert.Equal(t, key1, key2)
	assert.NotEqual(t, key1, key3)
	assert.Contains(t, key1, "test:answer:")
}

func TestAnswerCacheNilConfigDisabled(t *testing.T) {
	cache := NewAnswerCache(nil, nil)

	assert.False(t, cache.config.Enabled)
	assert.Equal(t, time.Hour, cache.config.TTL)
}

func TestAnswerCacheSetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	cache := NewAnswerCache(client, testCacheConfig())
	ctx := context.Background()

	resp := &model.ChatResponse{
		Answer: "cached answer",
		Citations: []model.Citation{
			{ChunkID: "doc-0", SourceDocument: "doc.txt", Score: 0.9, Snippet: "snippet"},
		},
		LatencyMS:  12.5,
		Confidence: 0.9,
	}

	require.NoError(t, cache.Set(ctx, "the question", resp))

	got, err := cache.Get(ctx, "the question")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, resp.Answer, got.Answer)
	assert.Equal(t, resp.Citations, got.Citations)
	assert.Equal(t, resp.Confidence, got.Confidence)
}

func TestAnswerCacheMiss(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	cache := NewAnswerCache(client, testCacheConfig())

	got, err := cache.Get(context.Background(), "never asked")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAnswerCacheDisabled(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	cache := NewAnswerCache(client, &AnswerCacheConfig{Enabled: false})
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "q", &model.ChatResponse{Answer: "a"}))

	_, err := cache.Get(ctx, "q")
	assert.Error(t, err)
}

func TestAnswerCacheCorruptedEntryDeleted(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	cache := NewAnswerCache(client, testCacheConfig())
	ctx := context.Background()

	key := cache.cacheKey("broken")
	require.NoError(t, client.Set(ctx, key, "not json", time.Hour).Err())

	_, err := cache.Get(ctx, "broken")
	assert.Error(t, err)

	// The corrupted entry is removed so the next lookup is a clean miss.
	exists, err := client.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestAnswerCacheClear(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	cache := NewAnswerCache(client, testCacheConfig())
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "q1", &model.ChatResponse{Answer: "a1"}))
	require.NoError(t, cache.Set(ctx, "q2", &model.ChatResponse{Answer: "a2"}))

	require.NoError(t, cache.Clear(ctx))

	got, err := cache.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAnswerCacheStats(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	cache := NewAnswerCache(client, testCacheConfig())
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "q1", &model.ChatResponse{Answer: "a1"}))

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, stats["enabled"])
	assert.Equal(t, 1, stats["key_count"])
}
