package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maneesh/docvault/internal/models"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCompletionTTL is how long finished uploads stay queryable.
const DefaultCompletionTTL = time.Hour

// RedisCompletionCache shares finished-upload results across service instances
type RedisCompletionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

// NewRedisCompletionCache wraps an existing client
func NewRedisCompletionCache(client *redis.Client, ttl time.Duration) *RedisCompletionCache {
	if ttl <= 0 {
		ttl = DefaultCompletionTTL
	}
	return &RedisCompletionCache{client: client, ttl: ttl}
}

func completionKey(fileID string) string {
	return fmt.Sprintf("upload:completed:%s", fileID)
}

// SetCompleted stores the finished upload with the cache TTL
func (rc *RedisCompletionCache) SetCompleted(ctx context.Context, obj *models.UploadedObject) error {
	ctx, span := tracer.Start(ctx, "redis.set_completed",
		trace.WithAttributes(
			attribute.String("file_id", obj.FileID),
			attribute.String("object_key", obj.Key),
		),
	)
	defer span.End()

	data, err := json.Marshal(obj)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal upload: %w", err)
	}

	if err := rc.client.Set(ctx, completionKey(obj.FileID), data, rc.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set cache: %w", err)
	}

	span.SetAttributes(attribute.Int64("ttl_seconds", int64(rc.ttl.Seconds())))
	return nil
}

// GetCompleted returns nil, nil on a cache miss
func (rc *RedisCompletionCache) GetCompleted(ctx context.Context, fileID string) (*models.UploadedObject, error) {
	ctx, span := tracer.Start(ctx, "redis.get_completed",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	data, err := rc.client.Get(ctx, completionKey(fileID)).Bytes()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.String("cache_status", "miss"))
		return nil, nil
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var obj models.UploadedObject
	if err := json.Unmarshal(data, &obj); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal cached upload: %w", err)
	}

	span.SetAttributes(attribute.String("cache_status", "hit"))
	return &obj, nil
}

// Ping reports whether Redis is reachable
func (rc *RedisCompletionCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}
