// Package cache resolves lyrics from the local SQLite tier and the static
// database before any remote generation is attempted.
package cache

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kalambet/kashi/internal/songs"
	"github.com/kalambet/kashi/internal/storage"
)

// KeyPrefix namespaces lyrics entries in the local store.
const KeyPrefix = "jpop_lyrics_v1_"

// Tier names where a result came from.
type Tier string

const (
	TierLocal     Tier = "local"
	TierStatic    Tier = "static"
	TierGenerated Tier = "generated"
)

// LocalStore is the read-write persistent tier.
type LocalStore interface {
	GetCached(ctx context.Context, key string) (string, error)
	PutCached(ctx context.Context, key, value string) error
	DeleteCached(ctx context.Context, key string) error
	HasCached(ctx context.Context, key string) (bool, error)
}

// StaticSource is the read-only precomputed tier. Lookup must miss, not
// block, while the source is still loading.
type StaticSource interface {
	Lookup(key string) (string, bool)
}

// Resolver consults the local tier, then the static tier.
type Resolver struct {
	local  LocalStore
	static StaticSource
}

// NewResolver creates a Resolver. static may be nil.
func NewResolver(local LocalStore, static StaticSource) *Resolver {
	return &Resolver{local: local, static: static}
}

// LocalKey is the local store key for ref.
func LocalKey(ref songs.Ref) string {
	return KeyPrefix + ref.QueryKey
}

// Lookup returns cached markup for ref and the tier it came from. Local read
// errors are logged and treated as a miss.
func (r *Resolver) Lookup(ctx context.Context, ref songs.Ref) (string, Tier, bool) {
	markup, err := r.local.GetCached(ctx, LocalKey(ref))
	switch {
	case err == nil && markup != "":
		return markup, TierLocal, true
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		slog.Warn("cache: local read failed, treating as miss", "song", ref.QueryKey, "error", err)
	}

	if r.static != nil {
		if markup, ok := r.static.Lookup(ref.QueryKey); ok {
			return markup, TierStatic, true
		}
	}
	return "", "", false
}

// Store writes markup to the local tier. The error is returned unclassified;
// storage.ErrQuotaExceeded means the cache is full.
func (r *Resolver) Store(ctx context.Context, ref songs.Ref, markup string) error {
	return r.local.PutCached(ctx, LocalKey(ref), markup)
}

// Forget removes the local entry for ref.
func (r *Resolver) Forget(ctx context.Context, ref songs.Ref) error {
	return r.local.DeleteCached(ctx, LocalKey(ref))
}

// Contains reports whether either tier can serve ref without generation.
func (r *Resolver) Contains(ctx context.Context, ref songs.Ref) bool {
	ok, err := r.local.HasCached(ctx, LocalKey(ref))
	if err != nil {
		slog.Warn("cache: local existence check failed", "song", ref.QueryKey, "error", err)
	}
	if ok {
		return true
	}
	if r.static != nil {
		_, ok = r.static.Lookup(ref.QueryKey)
	}
	return ok
}
