package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

// Index maps fingerprints to artifact ids. *store.SQLiteStore and *RedisIndex implement it.
type Index interface {
	GetCacheEntry(ctx context.Context, fingerprint string) (model.CacheEntry, bool, error)
	PutCacheEntry(ctx context.Context, e model.CacheEntry) error
	DeleteCacheEntry(ctx context.Context, fingerprint string) error
}

// ArtifactLoader resolves artifact ids.
type ArtifactLoader interface {
	GetArtifact(ctx context.Context, id string) (model.AIArtifact, error)
}

// Stats are process-lifetime cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Corruptions int64
}

// Cache is a content-addressed artifact cache. Entries never expire by wall
// clock; only a model version change or an explicit Invalidate retires one.
// Safe for concurrent use.
type Cache struct {
	index        Index
	artifacts    ArtifactLoader
	modelVersion string
	logger       *slog.Logger

	hits, misses, corruptions atomic.Int64
}

// New creates a cache over index, resolving artifacts through loader. Entries
// recorded under any other model version are treated as misses.
func New(index Index, loader ArtifactLoader, modelVersion string, logger *slog.Logger) *Cache {
	return &Cache{
		index:        index,
		artifacts:    loader,
		modelVersion: modelVersion,
		logger:       logger,
	}
}

// ModelVersion is the epoch the cache serves.
func (c *Cache) ModelVersion() string {
	return c.modelVersion
}

// Get returns the artifact cached under fingerprint. A stored artifact whose
// own fingerprint does not match, or that no longer exists, is CacheCorruption:
// the entry is invalidated and Get reports a miss.
func (c *Cache) Get(ctx context.Context, fingerprint string) (model.AIArtifact, bool, error) {
	entry, ok, err := c.index.GetCacheEntry(ctx, fingerprint)
	if err != nil {
		return model.AIArtifact{}, false, fmt.Errorf("cache lookup: %w", err)
	}
	if !ok || entry.ModelVersion != c.modelVersion {
		c.misses.Add(1)
		c.logger.Debug("cache miss", "fingerprint", short(fingerprint))
		return model.AIArtifact{}, false, nil
	}

	artifact, err := c.artifacts.GetArtifact(ctx, entry.ArtifactID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		c.corrupt(ctx, fingerprint, model.CacheCorruption(
			fmt.Sprintf("entry %s points at missing artifact %s", short(fingerprint), entry.ArtifactID)))
		return model.AIArtifact{}, false, nil
	case err != nil:
		return model.AIArtifact{}, false, fmt.Errorf("cache load artifact: %w", err)
	}

	if artifact.Fingerprint != fingerprint {
		c.corrupt(ctx, fingerprint, model.CacheCorruption(
			fmt.Sprintf("artifact %s has fingerprint %s, entry says %s",
				artifact.ID, short(artifact.Fingerprint), short(fingerprint))))
		return model.AIArtifact{}, false, nil
	}

	c.hits.Add(1)
	c.logger.Debug("cache hit", "fingerprint", short(fingerprint), "artifact", artifact.ID)
	return artifact, true, nil
}

// Put records that fingerprint resolves to artifact. A later Put for the same
// fingerprint overwrites.
func (c *Cache) Put(ctx context.Context, fingerprint string, artifact model.AIArtifact) error {
	if artifact.Fingerprint != fingerprint {
		return model.CacheCorruption(fmt.Sprintf("refusing to cache artifact %s under foreign fingerprint", artifact.ID))
	}
	return c.index.PutCacheEntry(ctx, model.CacheEntry{
		Fingerprint:  fingerprint,
		ArtifactID:   artifact.ID,
		ModelVersion: c.modelVersion,
		CreatedAt:    time.Now().UTC(),
	})
}

// Invalidate removes a fingerprint.
func (c *Cache) Invalidate(ctx context.Context, fingerprint string) error {
	return c.index.DeleteCacheEntry(ctx, fingerprint)
}

// Stats returns the counters since the cache was created.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Corruptions: c.corruptions.Load(),
	}
}

func (c *Cache) corrupt(ctx context.Context, fingerprint string, cause error) {
	c.corruptions.Add(1)
	c.misses.Add(1)
	c.logger.Warn("invalidating corrupt cache entry", "fingerprint", short(fingerprint), "error", cause)
	if err := c.index.DeleteCacheEntry(ctx, fingerprint); err != nil {
		c.logger.Error("failed to invalidate cache entry", "fingerprint", short(fingerprint), "error", err)
	}
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
