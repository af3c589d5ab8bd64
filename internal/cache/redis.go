package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amishk599/autoapply/internal/model"
)

const redisKeyPrefix = "autoapply:cache:"

// RedisIndex keeps the fingerprint index in Redis so several processes can
// share cache hits. Artifacts themselves stay in the SQL store.
type RedisIndex struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisIndex parses redisURL and verifies connectivity.
func NewRedisIndex(ctx context.Context, redisURL string, logger *slog.Logger) (*RedisIndex, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisIndex{client: client, logger: logger}, nil
}

type redisEntry struct {
	ArtifactID   string `json:"artifact_id"`
	ModelVersion string `json:"model_version"`
	CreatedAt    int64  `json:"created_at"`
}

func (r *RedisIndex) GetCacheEntry(ctx context.Context, fingerprint string) (model.CacheEntry, bool, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.CacheEntry{}, false, nil
	}
	if err != nil {
		return model.CacheEntry{}, false, fmt.Errorf("redis get: %w", err)
	}

	var e redisEntry
	if err := json.Unmarshal(data, &e); err != nil {
		// Unreadable entries are dropped and reported as absent.
		r.logger.Warn("dropping unreadable cache entry", "fingerprint", fingerprint, "error", err)
		if err := r.DeleteCacheEntry(ctx, fingerprint); err != nil {
			r.logger.Error("failed to drop unreadable cache entry", "fingerprint", fingerprint, "error", err)
		}
		return model.CacheEntry{}, false, nil
	}
	return model.CacheEntry{
		Fingerprint:  fingerprint,
		ArtifactID:   e.ArtifactID,
		ModelVersion: e.ModelVersion,
		CreatedAt:    time.UnixMilli(e.CreatedAt).UTC(),
	}, true, nil
}

func (r *RedisIndex) PutCacheEntry(ctx context.Context, e model.CacheEntry) error {
	data, err := json.Marshal(redisEntry{
		ArtifactID:   e.ArtifactID,
		ModelVersion: e.ModelVersion,
		CreatedAt:    e.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+e.Fingerprint, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisIndex) DeleteCacheEntry(ctx context.Context, fingerprint string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+fingerprint).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisIndex) Close() error {
	return r.client.Close()
}
