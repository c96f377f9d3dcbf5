package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/image-annotator/backend/internal/config"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "annotation:101", AnnotationKey("101"))
	assert.Equal(t, "annotations:image:7", ImageListKey("7"))
}

func TestNewWithClient_DefaultTTL(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	assert.Equal(t, defaultTTL, NewWithClient(client, 0, zap.NewNop()).ttl)
	assert.Equal(t, time.Minute, NewWithClient(client, time.Minute, zap.NewNop()).ttl)
}

func TestNewRedisCache_BadURL(t *testing.T) {
	_, err := NewRedisCache(&config.Config{RedisURL: "not a url"}, zap.NewNop())
	assert.Error(t, err)
}

// An unreachable server degrades reads to misses instead of failing them.
func TestReadsMissWhenUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewWithClient(client, time.Minute, zap.NewNop())
	defer c.Close()

	ctx := context.Background()

	annotation, err := c.Get(ctx, "101")
	require.NoError(t, err)
	assert.Nil(t, annotation)

	list, ok, err := c.GetImageAnnotations(ctx, "7")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, list)

	assert.Error(t, c.InvalidateImage(ctx, "7"))
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var c Cache = Noop{}

	require.NoError(t, c.SetImageAnnotations(ctx, "7", nil))
	_, found, err := c.GetImageAnnotations(ctx, "7")
	require.NoError(t, err)
	assert.False(t, found)

	annotation, err := c.Get(ctx, "101")
	require.NoError(t, err)
	assert.Nil(t, annotation)
	assert.NoError(t, c.Close())
}
