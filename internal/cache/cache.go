// Package cache provides Redis caching of annotations, keyed per image.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/image-annotator/backend/internal/config"
	"github.com/image-annotator/backend/internal/models"
)

const (
	// Cache key prefixes
	annotationKeyPrefix = "annotation:"
	imageListKeyPrefix  = "annotations:image:"

	// Default TTL for cached items
	defaultTTL = 5 * time.Minute
)

// Cache defines the interface for caching operations.
// Read errors are reported as misses.
type Cache interface {
	// Get retrieves an annotation from cache by ID.
	Get(ctx context.Context, id string) (*models.Annotation, error)

	// Set stores an annotation and drops its image's cached list.
	Set(ctx context.Context, annotation *models.Annotation) error

	// Delete removes an annotation and drops its image's cached list.
	Delete(ctx context.Context, id, imageID string) error

	// GetImageAnnotations retrieves an image's cached annotation list.
	GetImageAnnotations(ctx context.Context, imageID string) ([]models.Annotation, bool, error)

	// SetImageAnnotations caches an image's annotation list.
	SetImageAnnotations(ctx context.Context, imageID string, annotations []models.Annotation) error

	// InvalidateImage drops an image's cached list.
	InvalidateImage(ctx context.Context, imageID string) error

	// Close closes the cache connection.
	Close() error
}

// RedisCache implements Cache using Redis.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(cfg *config.Config, logger *zap.Logger) (Cache, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis cache")

	return NewWithClient(client, cfg.CacheTTL, logger), nil
}

// NewWithClient wraps an existing client. A non-positive ttl uses the default.
func NewWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// AnnotationKey returns the key holding one annotation.
func AnnotationKey(id string) string {
	return annotationKeyPrefix + id
}

// ImageListKey returns the key holding an image's annotation list.
func ImageListKey(imageID string) string {
	return imageListKeyPrefix + imageID
}

// Get retrieves an annotation from cache by ID.
func (c *RedisCache) Get(ctx context.Context, id string) (*models.Annotation, error) {
	var annotation models.Annotation
	if !c.load(ctx, AnnotationKey(id), &annotation) {
		return nil, nil
	}
	return &annotation, nil
}

// GetImageAnnotations retrieves an image's cached annotation list.
func (c *RedisCache) GetImageAnnotations(ctx context.Context, imageID string) ([]models.Annotation, bool, error) {
	var annotations []models.Annotation
	if !c.load(ctx, ImageListKey(imageID), &annotations) {
		return nil, false, nil
	}
	if annotations == nil {
		annotations = []models.Annotation{}
	}
	return annotations, true, nil
}

// Set stores an annotation in cache.
func (c *RedisCache) Set(ctx context.Context, annotation *models.Annotation) error {
	key := AnnotationKey(annotation.ID)

	data, err := json.Marshal(annotation)
	if err != nil {
		c.logger.Warn("Failed to marshal annotation for cache", zap.Error(err))
		return err
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, c.ttl)
		pipe.Del(ctx, ImageListKey(annotation.ImageID))
		return nil
	})
	if err != nil {
		c.logger.Warn("Failed to set cache", zap.String("key", key), zap.Error(err))
		return err
	}

	c.logger.Debug("Cached annotation", zap.String("key", key))
	return nil
}

// SetImageAnnotations caches an image's annotation list.
func (c *RedisCache) SetImageAnnotations(ctx context.Context, imageID string, annotations []models.Annotation) error {
	key := ImageListKey(imageID)

	data, err := json.Marshal(annotations)
	if err != nil {
		c.logger.Warn("Failed to marshal annotations for cache", zap.Error(err))
		return err
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to set image cache", zap.String("key", key), zap.Error(err))
		return err
	}

	c.logger.Debug("Cached image annotations", zap.String("key", key), zap.Int("count", len(annotations)))
	return nil
}

// Delete removes an annotation from cache.
func (c *RedisCache) Delete(ctx context.Context, id, imageID string) error {
	keys := []string{AnnotationKey(id)}
	if imageID != "" {
		keys = append(keys, ImageListKey(imageID))
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Failed to delete from cache", zap.Strings("keys", keys), zap.Error(err))
		return err
	}

	c.logger.Debug("Deleted from cache", zap.Strings("keys", keys))
	return nil
}

// InvalidateImage drops an image's cached list.
func (c *RedisCache) InvalidateImage(ctx context.Context, imageID string) error {
	if err := c.client.Del(ctx, ImageListKey(imageID)).Err(); err != nil {
		c.logger.Warn("Failed to invalidate image cache", zap.String("image_id", imageID), zap.Error(err))
		return err
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	c.logger.Info("Closing Redis connection")
	return c.client.Close()
}

// load decodes key into dst, reporting false on a miss or any failure.
func (c *RedisCache) load(ctx context.Context, key string, dst any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("Failed to get from cache", zap.String("key", key), zap.Error(err))
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("Failed to unmarshal cached value", zap.String("key", key), zap.Error(err))
		return false
	}

	c.logger.Debug("Cache hit", zap.String("key", key))
	return true
}
