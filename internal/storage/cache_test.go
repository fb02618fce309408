package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCacheRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutCached(ctx, "jpop_lyrics_v1_Lemon - 米津玄師", "<ruby>夢<rt>ゆめ</rt></ruby>"); err != nil {
		t.Fatalf("PutCached: %v", err)
	}

	got, err := s.GetCached(ctx, "jpop_lyrics_v1_Lemon - 米津玄師")
	if err != nil {
		t.Fatalf("GetCached: %v", err)
	}
	if got != "<ruby>夢<rt>ゆめ</rt></ruby>" {
		t.Errorf("GetCached = %q", got)
	}

	ok, err := s.HasCached(ctx, "jpop_lyrics_v1_Lemon - 米津玄師")
	if err != nil {
		t.Fatalf("HasCached: %v", err)
	}
	if !ok {
		t.Error("HasCached = false, want true")
	}
}

func TestGetCachedNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetCached(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCached(missing) error = %v, want ErrNotFound", err)
	}
}

func TestPutCachedOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutCached(ctx, "k", "first"); err != nil {
		t.Fatalf("PutCached: %v", err)
	}
	if err := s.PutCached(ctx, "k", "second value"); err != nil {
		t.Fatalf("PutCached: %v", err)
	}

	got, err := s.GetCached(ctx, "k")
	if err != nil {
		t.Fatalf("GetCached: %v", err)
	}
	if got != "second value" {
		t.Errorf("GetCached = %q, want %q", got, "second value")
	}

	n, bytes, err := s.CacheSize(ctx)
	if err != nil {
		t.Fatalf("CacheSize: %v", err)
	}
	if n != 1 || bytes != int64(len("second value")) {
		t.Errorf("CacheSize = (%d, %d), want (1, %d)", n, bytes, len("second value"))
	}
}

func TestPutCachedQuotaExceeded(t *testing.T) {
	s := openTestStore(t)
	s.SetMaxCacheBytes(20)
	ctx := context.Background()

	if err := s.PutCached(ctx, "a", strings.Repeat("x", 15)); err != nil {
		t.Fatalf("PutCached a: %v", err)
	}

	err := s.PutCached(ctx, "b", strings.Repeat("y", 10))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("PutCached b error = %v, want ErrQuotaExceeded", err)
	}
	if ok, _ := s.HasCached(ctx, "b"); ok {
		t.Error("rejected entry must not be stored")
	}

	// Replacing an existing entry only counts the other entries.
	if err := s.PutCached(ctx, "a", strings.Repeat("z", 20)); err != nil {
		t.Errorf("replacing within limit: %v", err)
	}
}

func TestPutCachedUnlimited(t *testing.T) {
	s := openTestStore(t)
	s.SetMaxCacheBytes(0)

	if err := s.PutCached(context.Background(), "big", strings.Repeat("x", int(DefaultMaxCacheBytes)+1)); err != nil {
		t.Errorf("PutCached with no limit: %v", err)
	}
}

func TestDeleteCached(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutCached(ctx, "k", "v"); err != nil {
		t.Fatalf("PutCached: %v", err)
	}
	if err := s.DeleteCached(ctx, "k"); err != nil {
		t.Fatalf("DeleteCached: %v", err)
	}
	if _, err := s.GetCached(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete, GetCached error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteCached(ctx, "k"); err != nil {
		t.Errorf("deleting a missing key: %v", err)
	}
}

func TestListAndClearCache(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if err := s.PutCached(ctx, k, "value-"+k); err != nil {
			t.Fatalf("PutCached %s: %v", k, err)
		}
	}

	entries, err := s.ListCached(ctx, 2)
	if err != nil {
		t.Fatalf("ListCached: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ListCached returned %d entries, want 2", len(entries))
	}
	if entries[0].SizeBytes != int64(len("value-a")) {
		t.Errorf("SizeBytes = %d, want %d", entries[0].SizeBytes, len("value-a"))
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not populated")
	}

	n, err := s.ClearCache(ctx)
	if err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	if n != 3 {
		t.Errorf("ClearCache removed %d, want 3", n)
	}
	count, _, err := s.CacheSize(ctx)
	if err != nil {
		t.Fatalf("CacheSize: %v", err)
	}
	if count != 0 {
		t.Errorf("CacheSize after clear = %d, want 0", count)
	}
}
