package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/amishk599/autoapply/internal/model"
)

// GetCacheEntry looks up a fingerprint. ok is false when there is no entry.
func (s *SQLiteStore) GetCacheEntry(ctx context.Context, fingerprint string) (model.CacheEntry, bool, error) {
	var (
		e       model.CacheEntry
		created string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT fingerprint, artifact_id, model_version, created_at FROM cache_entries WHERE fingerprint = ?",
		fingerprint).Scan(&e.Fingerprint, &e.ArtifactID, &e.ModelVersion, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CacheEntry{}, false, nil
	}
	if err != nil {
		return model.CacheEntry{}, false, fmt.Errorf("loading cache entry %s: %w", fingerprint, err)
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return model.CacheEntry{}, false, err
	}
	return e, true, nil
}

// PutCacheEntry records a fingerprint. A later put for the same fingerprint
// overwrites the earlier one.
func (s *SQLiteStore) PutCacheEntry(ctx context.Context, e model.CacheEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO cache_entries (fingerprint, artifact_id, model_version, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			artifact_id = excluded.artifact_id,
			model_version = excluded.model_version,
			created_at = excluded.created_at`,
		e.Fingerprint, e.ArtifactID, e.ModelVersion, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving cache entry %s: %w", e.Fingerprint, err)
	}
	return nil
}

// DeleteCacheEntry removes a fingerprint. Deleting a missing entry is a no-op.
func (s *SQLiteStore) DeleteCacheEntry(ctx context.Context, fingerprint string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE fingerprint = ?", fingerprint); err != nil {
		return fmt.Errorf("deleting cache entry %s: %w", fingerprint, err)
	}
	return nil
}

// RetireCacheEntries deletes every entry not produced by modelVersion and
// returns how many were removed.
func (s *SQLiteStore) RetireCacheEntries(ctx context.Context, modelVersion string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE model_version <> ?", modelVersion)
	if err != nil {
		return 0, fmt.Errorf("retiring cache entries: %w", err)
	}
	return res.RowsAffected()
}
