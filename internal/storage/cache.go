package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCached returns the cached value stored under key, or ErrNotFound.
func (s *Store) GetCached(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM lyrics_cache WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// HasCached reports whether key has a cache entry.
func (s *Store) HasCached(ctx context.Context, key string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lyrics_cache WHERE key = ?`, key).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// PutCached inserts or replaces the entry for key. When the write would push
// the total cache size past the configured limit it returns ErrQuotaExceeded
// and leaves the cache unchanged.
func (s *Store) PutCached(ctx context.Context, key, value string) error {
	size := int64(len(value))
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning cache write: %w", err)
	}
	defer tx.Rollback()

	if limit := s.maxCacheBytes.Load(); limit > 0 {
		var others int64
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(size_bytes), 0) FROM lyrics_cache WHERE key != ?`, key,
		).Scan(&others)
		if err != nil {
			return fmt.Errorf("measuring cache: %w", err)
		}
		if others+size > limit {
			return fmt.Errorf("%w: %d bytes used, %d requested, limit %d", ErrQuotaExceeded, others, size, limit)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lyrics_cache (key, value, size_bytes, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, size_bytes = excluded.size_bytes, updated_at = excluded.updated_at`,
		key, value, size, now, now,
	)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return tx.Commit()
}

// DeleteCached removes the entry for key. Deleting a missing key is not an error.
func (s *Store) DeleteCached(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM lyrics_cache WHERE key = ?`, key)
	return err
}

// CacheSize returns the number of entries and their total size in bytes.
func (s *Store) CacheSize(ctx context.Context) (entries int, bytes int64, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM lyrics_cache`,
	).Scan(&entries, &bytes)
	return entries, bytes, err
}

// ListCached returns cache entries without their values, most recently updated first.
func (s *Store) ListCached(ctx context.Context, limit int) ([]CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, size_bytes, created_at, updated_at
		FROM lyrics_cache ORDER BY updated_at DESC, key ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CacheEntry
	for rows.Next() {
		var e CacheEntry
		var createdAt, updatedAt string
		if err := rows.Scan(&e.Key, &e.SizeBytes, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// ClearCache deletes every cache entry and returns how many were removed.
func (s *Store) ClearCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lyrics_cache`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
